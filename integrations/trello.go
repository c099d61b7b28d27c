package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chxlky/trello-board-planner/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const DefaultTrelloBaseURL = "https://api.trello.com/1"

var (
	ErrMissingCredentials = errors.New("missing API credentials")

	ErrTrelloUnauthorized = errors.New("trello: unauthorized")
	ErrTrelloNotFound     = errors.New("trello: not found")
	ErrTrelloRateLimited  = errors.New("trello: rate limited")
	ErrLabelAlreadyOnCard = errors.New("trello: label already on the card")
)

// TrelloError is returned for any non-200 response. It matches the
// ErrTrello* sentinels with errors.Is based on status code and body.
type TrelloError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *TrelloError) Error() string {
	return fmt.Sprintf("trello API returned non-200 status for %s %s: %d, body: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *TrelloError) Is(target error) bool {
	switch target {
	case ErrTrelloUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrTrelloNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrTrelloRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrLabelAlreadyOnCard:
		return e.StatusCode == http.StatusBadRequest &&
			strings.Contains(strings.ToLower(e.Body), "already on the card")
	}
	return false
}

type TrelloClient struct {
	Client   *http.Client
	APIKey   string
	APIToken string
	BaseURL  string
}

// NewTrelloClient fails before any request is made if either credential is
// empty. An empty baseURL selects the public Trello API.
func NewTrelloClient(key, token, baseURL string) (*TrelloClient, error) {
	var missing []string
	if strings.TrimSpace(key) == "" {
		missing = append(missing, "api key")
	}
	if strings.TrimSpace(token) == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: trello %s", ErrMissingCredentials, strings.Join(missing, " and "))
	}

	if baseURL == "" {
		baseURL = DefaultTrelloBaseURL
	}

	return &TrelloClient{
		Client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		APIKey:   key,
		APIToken: token,
		BaseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

func (tc *TrelloClient) CreateBoard(ctx context.Context, name string) (models.Board, error) {
	formData := url.Values{}
	formData.Set("name", name)
	formData.Set("defaultLists", "false")
	formData.Set("prefs_permissionLevel", "private")

	var board models.Board
	if err := tc.do(ctx, http.MethodPost, "/boards/", formData, &board); err != nil {
		return models.Board{}, fmt.Errorf("create board %q: %w", name, err)
	}

	zap.L().Debug("Created Trello board", zap.String("boardID", board.ID), zap.String("url", board.URL))

	return board, nil
}

func (tc *TrelloClient) SetBoardDescription(ctx context.Context, boardID, desc string) error {
	formData := url.Values{}
	formData.Set("value", desc)

	if err := tc.do(ctx, http.MethodPut, "/boards/"+url.PathEscape(boardID)+"/desc", formData, nil); err != nil {
		return fmt.Errorf("set description of board %s: %w", boardID, err)
	}
	return nil
}

func (tc *TrelloClient) GetBoard(ctx context.Context, boardID string) (models.Board, error) {
	params := url.Values{}
	params.Set("fields", "name,desc,url")

	var board models.Board
	if err := tc.do(ctx, http.MethodGet, "/boards/"+url.PathEscape(boardID), params, &board); err != nil {
		return models.Board{}, fmt.Errorf("get board %s: %w", boardID, err)
	}
	return board, nil
}

func (tc *TrelloClient) CreateList(ctx context.Context, boardID, name string) (models.List, error) {
	formData := url.Values{}
	formData.Set("name", name)
	formData.Set("idBoard", boardID)
	// lists are created in plan order, so each new one goes to the right
	formData.Set("pos", "bottom")

	var list models.List
	if err := tc.do(ctx, http.MethodPost, "/lists", formData, &list); err != nil {
		return models.List{}, fmt.Errorf("create list %q: %w", name, err)
	}
	return list, nil
}

func (tc *TrelloClient) GetList(ctx context.Context, listID string) (models.List, error) {
	params := url.Values{}
	params.Set("fields", "name,idBoard")

	var list models.List
	if err := tc.do(ctx, http.MethodGet, "/lists/"+url.PathEscape(listID), params, &list); err != nil {
		return models.List{}, fmt.Errorf("get list %s: %w", listID, err)
	}
	return list, nil
}

func (tc *TrelloClient) CreateCard(ctx context.Context, listID, name, desc string) (models.Card, error) {
	formData := url.Values{}
	formData.Set("idList", listID)
	formData.Set("name", name)
	formData.Set("desc", desc)
	formData.Set("pos", "bottom")

	var card models.Card
	if err := tc.do(ctx, http.MethodPost, "/cards", formData, &card); err != nil {
		return models.Card{}, fmt.Errorf("create card %q: %w", name, err)
	}
	return card, nil
}

func (tc *TrelloClient) CreateLabel(ctx context.Context, boardID, name, color string) (models.Label, error) {
	formData := url.Values{}
	formData.Set("idBoard", boardID)
	formData.Set("name", name)
	formData.Set("color", color)

	var label models.Label
	if err := tc.do(ctx, http.MethodPost, "/labels", formData, &label); err != nil {
		return models.Label{}, fmt.Errorf("create label %q (%s): %w", name, color, err)
	}
	return label, nil
}

// AddLabelToCard returns an error matching ErrLabelAlreadyOnCard when Trello
// reports the label is already attached.
func (tc *TrelloClient) AddLabelToCard(ctx context.Context, cardID, labelID string) error {
	formData := url.Values{}
	formData.Set("value", labelID)

	if err := tc.do(ctx, http.MethodPost, "/cards/"+url.PathEscape(cardID)+"/idLabels", formData, nil); err != nil {
		return fmt.Errorf("add label %s to card %s: %w", labelID, cardID, err)
	}
	return nil
}

func (tc *TrelloClient) AddMemberToCard(ctx context.Context, cardID, memberID string) error {
	formData := url.Values{}
	formData.Set("value", memberID)

	if err := tc.do(ctx, http.MethodPost, "/cards/"+url.PathEscape(cardID)+"/idMembers", formData, nil); err != nil {
		return fmt.Errorf("add member %s to card %s: %w", memberID, cardID, err)
	}
	return nil
}

// ListBoards returns the boards of the member owning the token.
func (tc *TrelloClient) ListBoards(ctx context.Context) ([]models.Board, error) {
	params := url.Values{}
	params.Set("fields", "name,desc,url")

	var boards []models.Board
	if err := tc.do(ctx, http.MethodGet, "/members/me/boards", params, &boards); err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	return boards, nil
}

// do sends key and token with every request: in the query string for GET,
// in the form body otherwise. Credentials never appear in returned errors.
func (tc *TrelloClient) do(ctx context.Context, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", tc.APIKey)
	params.Set("token", tc.APIToken)

	apiURL := tc.BaseURL + path
	var body io.Reader
	if method == http.MethodGet {
		apiURL += "?" + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", strings.ToLower(method), err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := tc.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request to %s: %w", strings.ToLower(method), path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TrelloError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(bodyBytes)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Trello response: %w", err)
	}
	return nil
}
