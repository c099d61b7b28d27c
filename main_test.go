package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/chxlky/trello-board-planner/integrations"
	"github.com/chxlky/trello-board-planner/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoPlan = `{
  "name": "Restaurant Website",
  "description": "Website for a local restaurant",
  "lists": [
    {"name": "Backlog", "cards": [
      {"title": "Delivery platforms", "description": "Integrate delivery partners", "labels": ["feature"]}
    ]},
    {"name": "To Do", "cards": [
      {"title": "Menu page", "description": "Online menu with photos", "labels": ["feature", "docs"]}
    ]},
    {"name": "In Progress", "cards": []},
    {"name": "Review", "cards": []},
    {"name": "Done", "cards": []}
  ]
}`

// fakeTrello serves just enough of the Trello API for the planner.
type fakeTrello struct {
	mu       sync.Mutex
	requests []string
	nextID   int
}

func (f *fakeTrello) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	f.nextID++
	id := fmt.Sprintf("id%d", f.nextID)

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/1/members/me/boards":
		io.WriteString(w, `[{"id":"b1","name":"Restaurant Website","url":"https://trello.com/b/b1"}]`)
	case r.URL.Path == "/1/boards/":
		io.WriteString(w, `{"id":"b1","name":"Restaurant Website","url":"https://trello.com/b/b1"}`)
	case strings.HasSuffix(r.URL.Path, "/idLabels") && f.count("/idLabels") > 2:
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "that label is already on the card")
	default:
		fmt.Fprintf(w, `{"id":%q}`, id)
	}
}

func (f *fakeTrello) count(suffix string) int {
	n := 0
	for _, r := range f.requests {
		if strings.HasSuffix(r, suffix) {
			n++
		}
	}
	return n
}

func newOpenAIServer(t *testing.T, status int, content string) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			io.WriteString(w, `{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`)
			return
		}
		msg, _ := json.Marshal(content)
		fmt.Fprintf(w, `{"id":"c","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%s}}]}`, msg)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func setEnv(t *testing.T, trelloURL, openAIURL string) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("TRELLO_API_KEY", "key")
	t.Setenv("TRELLO_TOKEN", "token")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TRELLO_BASE_URL", trelloURL)
	t.Setenv("OPENAI_BASE_URL", openAIURL)
	t.Setenv("PLANNER_RETRY_DELAY", "1ms")
}

func runCmd(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDemoCommand(t *testing.T) {
	trello := &fakeTrello{}
	trelloSrv := httptest.NewServer(trello)
	t.Cleanup(trelloSrv.Close)
	openAISrv, calls := newOpenAIServer(t, http.StatusOK, "```json\n"+demoPlan+"\n```")
	setEnv(t, trelloSrv.URL+"/1", openAISrv.URL+"/v1/")

	out, err := runCmd("demo")
	require.NoError(t, err)

	assert.Contains(t, out, "Successfully created board! You can view it at: https://trello.com/b/b1")
	assert.Contains(t, out, "Your boards:")
	assert.Contains(t, out, "- Restaurant Website: https://trello.com/b/b1")
	assert.Equal(t, 1, *calls)

	assert.Equal(t, 5, trello.count("POST /1/lists"))
	assert.Equal(t, 2, trello.count("POST /1/cards"))
	assert.Equal(t, 1, trello.count("POST /1/labels"), "feature and docs share one blue label")
}

func TestCreateCommand_RateLimitExhausted(t *testing.T) {
	trello := &fakeTrello{}
	trelloSrv := httptest.NewServer(trello)
	t.Cleanup(trelloSrv.Close)
	openAISrv, calls := newOpenAIServer(t, http.StatusTooManyRequests, "")
	setEnv(t, trelloSrv.URL+"/1", openAISrv.URL+"/v1/")

	_, err := runCmd("create", "a", "bakery", "website")
	require.Error(t, err)
	assert.ErrorIs(t, err, integrations.ErrCompletionRateLimited)
	assert.Equal(t, 3, *calls)
	assert.Empty(t, trello.requests)
}

func TestDemoCommand_PrintsErrors(t *testing.T) {
	trello := &fakeTrello{}
	trelloSrv := httptest.NewServer(trello)
	t.Cleanup(trelloSrv.Close)
	openAISrv, _ := newOpenAIServer(t, http.StatusOK, `{"name": "no lists"}`)
	setEnv(t, trelloSrv.URL+"/1", openAISrv.URL+"/v1/")

	out, err := runCmd("demo")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error: failed to create board: invalid board plan"), out)
	assert.Empty(t, trello.requests)
}

func TestMissingCredentialsFailBeforeNetwork(t *testing.T) {
	trello := &fakeTrello{}
	trelloSrv := httptest.NewServer(trello)
	t.Cleanup(trelloSrv.Close)
	setEnv(t, trelloSrv.URL+"/1", "")
	t.Setenv("TRELLO_TOKEN", "")

	_, err := runCmd("boards")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
	assert.Empty(t, trello.requests)
}

func TestCreateCommand_RequiresDescription(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1/1", "")

	_, err := runCmd("create")
	assert.EqualError(t, err, "a project description is required")
}

func TestRun_ExitCode(t *testing.T) {
	setEnv(t, "http://127.0.0.1:1/1", "")
	args := os.Args
	t.Cleanup(func() { os.Args = args })

	os.Args = []string{"boardplanner", "create"}
	assert.Equal(t, 1, run())

	os.Args = []string{"boardplanner", "--help"}
	assert.Equal(t, 0, run())
}
