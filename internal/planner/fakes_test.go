package planner

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chxlky/trello-board-planner/integrations"
	"github.com/chxlky/trello-board-planner/internal/models"
)

// fakeBoards is an in-memory BoardService that records every call in order.
type fakeBoards struct {
	calls    []string
	nextID   int
	attached map[string]map[string]bool // cardID -> labelIDs
	labels   []models.Label
	cardLbls map[string][]string

	failOn    map[string]error // keyed by method name
	boards    []models.Board
	boardsErr error
}

func newFakeBoards() *fakeBoards {
	return &fakeBoards{
		attached: make(map[string]map[string]bool),
		cardLbls: make(map[string][]string),
		failOn:   make(map[string]error),
	}
}

func (f *fakeBoards) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeBoards) record(method string, format string, args ...any) error {
	f.calls = append(f.calls, method+" "+fmt.Sprintf(format, args...))
	return f.failOn[method]
}

func (f *fakeBoards) CreateBoard(_ context.Context, name string) (models.Board, error) {
	if err := f.record("CreateBoard", "%s", name); err != nil {
		return models.Board{}, err
	}
	id := f.id("board")
	return models.Board{ID: id, Name: name, URL: "https://trello.com/b/" + id}, nil
}

func (f *fakeBoards) SetBoardDescription(_ context.Context, boardID, desc string) error {
	return f.record("SetBoardDescription", "%s %s", boardID, desc)
}

func (f *fakeBoards) GetBoard(_ context.Context, boardID string) (models.Board, error) {
	if err := f.record("GetBoard", "%s", boardID); err != nil {
		return models.Board{}, err
	}
	return models.Board{ID: boardID}, nil
}

func (f *fakeBoards) CreateList(_ context.Context, boardID, name string) (models.List, error) {
	if err := f.record("CreateList", "%s %s", boardID, name); err != nil {
		return models.List{}, err
	}
	return models.List{ID: f.id("list"), Name: name, BoardID: boardID}, nil
}

func (f *fakeBoards) GetList(_ context.Context, listID string) (models.List, error) {
	if err := f.record("GetList", "%s", listID); err != nil {
		return models.List{}, err
	}
	return models.List{ID: listID}, nil
}

func (f *fakeBoards) CreateCard(_ context.Context, listID, name, desc string) (models.Card, error) {
	if err := f.record("CreateCard", "%s %s", listID, name); err != nil {
		return models.Card{}, err
	}
	return models.Card{ID: f.id("card"), Name: name, Desc: desc, ListID: listID}, nil
}

func (f *fakeBoards) CreateLabel(_ context.Context, boardID, name, color string) (models.Label, error) {
	if err := f.record("CreateLabel", "%s %s", name, color); err != nil {
		return models.Label{}, err
	}
	label := models.Label{ID: f.id("label"), Name: name, Color: color, BoardID: boardID}
	f.labels = append(f.labels, label)
	return label, nil
}

func (f *fakeBoards) AddLabelToCard(_ context.Context, cardID, labelID string) error {
	if err := f.record("AddLabelToCard", "%s %s", cardID, labelID); err != nil {
		return err
	}
	if f.attached[cardID] == nil {
		f.attached[cardID] = make(map[string]bool)
	}
	if f.attached[cardID][labelID] {
		return &integrations.TrelloError{
			Method:     http.MethodPost,
			Path:       "/cards/" + cardID + "/idLabels",
			StatusCode: http.StatusBadRequest,
			Body:       "that label is already on the card",
		}
	}
	f.attached[cardID][labelID] = true
	f.cardLbls[cardID] = append(f.cardLbls[cardID], labelID)
	return nil
}

func (f *fakeBoards) AddMemberToCard(_ context.Context, cardID, memberID string) error {
	return f.record("AddMemberToCard", "%s %s", cardID, memberID)
}

func (f *fakeBoards) ListBoards(_ context.Context) ([]models.Board, error) {
	f.calls = append(f.calls, "ListBoards")
	if f.boardsErr != nil {
		return nil, f.boardsErr
	}
	return f.boards, nil
}

func (f *fakeBoards) count(method string) int {
	n := 0
	for _, c := range f.calls {
		if c == method || strings.HasPrefix(c, method+" ") {
			n++
		}
	}
	return n
}

type generatorResult struct {
	plan *models.BoardPlan
	err  error
}

// stubGenerator returns results in order, repeating the last one.
type stubGenerator struct {
	results []generatorResult
	calls   int
}

func (s *stubGenerator) GeneratePlan(_ context.Context, _ string) (*models.BoardPlan, error) {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i].plan, s.results[i].err
}

type recordingSleeper struct {
	delays []time.Duration
	// cancel, when set, is called during the wait as if the caller gave up
	cancel context.CancelFunc
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	if r.cancel != nil {
		r.cancel()
		return ctx.Err()
	}
	return nil
}

type stubCompleter struct {
	response string
	err      error
	prompts  []string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func rateLimitErr() error {
	return fmt.Errorf("%w: 429 Too Many Requests", integrations.ErrCompletionRateLimited)
}
