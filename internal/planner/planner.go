// Package planner turns a free-text project description into a populated
// Trello board: a language model proposes the board, lists and cards, and
// the plan is replayed against the Trello API in order.
package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/chxlky/trello-board-planner/integrations"
	"github.com/chxlky/trello-board-planner/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second
)

// BoardService is the subset of the Trello API the planner needs.
// *integrations.TrelloClient implements it.
type BoardService interface {
	CreateBoard(ctx context.Context, name string) (models.Board, error)
	SetBoardDescription(ctx context.Context, boardID, desc string) error
	GetBoard(ctx context.Context, boardID string) (models.Board, error)
	CreateList(ctx context.Context, boardID, name string) (models.List, error)
	GetList(ctx context.Context, listID string) (models.List, error)
	CreateCard(ctx context.Context, listID, name, desc string) (models.Card, error)
	CreateLabel(ctx context.Context, boardID, name, color string) (models.Label, error)
	AddLabelToCard(ctx context.Context, cardID, labelID string) error
	AddMemberToCard(ctx context.Context, cardID, memberID string) error
	ListBoards(ctx context.Context) ([]models.Board, error)
}

var (
	_ BoardService = (*integrations.TrelloClient)(nil)
	_ Completer    = (*integrations.OpenAIClient)(nil)
)

type PlanGenerator interface {
	GeneratePlan(ctx context.Context, description string) (*models.BoardPlan, error)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Options struct {
	// MaxAttempts counts the first try. Defaults to DefaultMaxAttempts.
	MaxAttempts uint
	// RetryDelay is the wait before the first retry; it doubles after each.
	RetryDelay time.Duration
	Sleep      Sleeper
	Logger     *zap.Logger
}

type Planner struct {
	boards      BoardService
	generator   PlanGenerator
	maxAttempts uint
	retryDelay  time.Duration
	sleep       Sleeper
	logger      *zap.Logger
}

func New(boards BoardService, generator PlanGenerator, opts Options) *Planner {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = zap.L()
	}

	return &Planner{
		boards:      boards,
		generator:   generator,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		sleep:       opts.Sleep,
		logger:      opts.Logger,
	}
}

func isCompletionRateLimited(err error) bool {
	return errors.Is(err, integrations.ErrCompletionRateLimited)
}

// CreateBoard generates a plan for description, builds it on Trello and
// returns the board URL.
//
// Only language model rate limits are retried. When attempts run out the
// rate limit error is returned as is; any other failure is wrapped with
// "failed to create board". A board that fails halfway is left on Trello.
func (p *Planner) CreateBoard(ctx context.Context, description string) (string, error) {
	log := p.logger.With(zap.String("runID", uuid.NewString()))

	var boardURL string
	err := retry.Do(
		func() error {
			if err := ctx.Err(); err != nil {
				return retry.Unrecoverable(err)
			}
			url, err := p.createOnce(ctx, log, description)
			if err != nil {
				return err
			}
			boardURL = url
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(p.maxAttempts),
		retry.RetryIf(isCompletionRateLimited),
		retry.LastErrorOnly(true),
		// the wait happens in p.sleep so it can be replaced in tests;
		// retry-go itself is told not to wait
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			delay := p.retryDelay << n
			log.Warn("Rate limit hit, retrying",
				zap.Uint("attempt", n+1),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			if serr := p.sleep(ctx, delay); serr != nil {
				log.Debug("Retry wait interrupted", zap.Error(serr))
			}
			return 0
		}),
	)
	if err != nil {
		if isCompletionRateLimited(err) {
			log.Error("Rate limit retries exhausted", zap.Uint("attempts", p.maxAttempts))
			return "", err
		}
		return "", fmt.Errorf("failed to create board: %w", err)
	}

	return boardURL, nil
}

func (p *Planner) createOnce(ctx context.Context, log *zap.Logger, description string) (string, error) {
	plan, err := p.generator.GeneratePlan(ctx, description)
	if err != nil {
		return "", err
	}

	log.Info("Generated board plan",
		zap.String("board", plan.Name),
		zap.Int("lists", len(plan.Lists)),
		zap.Int("cards", plan.CardCount()),
	)

	return p.execute(ctx, log, plan)
}

func (p *Planner) execute(ctx context.Context, log *zap.Logger, plan *models.BoardPlan) (string, error) {
	board, err := p.boards.CreateBoard(ctx, plan.Name)
	if err != nil {
		return "", err
	}
	log = log.With(zap.String("boardID", board.ID))

	if err := p.boards.SetBoardDescription(ctx, board.ID, plan.Description); err != nil {
		return "", err
	}

	labels := NewLabelRegistry(p.boards, board.ID, log)

	for _, listPlan := range plan.Lists {
		list, err := p.boards.CreateList(ctx, board.ID, listPlan.Name)
		if err != nil {
			return "", err
		}

		for _, cardPlan := range listPlan.Cards {
			card, err := p.boards.CreateCard(ctx, list.ID, cardPlan.Title, cardPlan.Description)
			if err != nil {
				return "", err
			}

			if err := p.attachLabels(ctx, log, labels, card, cardPlan.Labels); err != nil {
				return "", err
			}

			for _, memberID := range cardPlan.Members {
				if err := p.boards.AddMemberToCard(ctx, card.ID, memberID); err != nil {
					return "", err
				}
			}
		}
	}

	log.Info("Board created",
		zap.String("url", board.URL),
		zap.Int("labels", labels.Len()),
	)

	return board.URL, nil
}

func (p *Planner) attachLabels(ctx context.Context, log *zap.Logger, labels *LabelRegistry, card models.Card, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}

		label, err := labels.Resolve(ctx, name)
		if err != nil {
			return err
		}

		if err := p.boards.AddLabelToCard(ctx, card.ID, label.ID); err != nil {
			if errors.Is(err, integrations.ErrLabelAlreadyOnCard) {
				log.Debug("Label already on card", zap.String("cardID", card.ID), zap.String("label", name))
				continue
			}
			return err
		}
	}
	return nil
}

// AddList appends a list to an existing board and returns its ID.
func (p *Planner) AddList(ctx context.Context, boardID, name string) (string, error) {
	board, err := p.boards.GetBoard(ctx, boardID)
	if err != nil {
		return "", err
	}

	list, err := p.boards.CreateList(ctx, board.ID, name)
	if err != nil {
		return "", err
	}
	return list.ID, nil
}

// AddCard appends a card to an existing list and returns its ID.
func (p *Planner) AddCard(ctx context.Context, listID, title, description string) (string, error) {
	list, err := p.boards.GetList(ctx, listID)
	if err != nil {
		return "", err
	}

	card, err := p.boards.CreateCard(ctx, list.ID, title, description)
	if err != nil {
		return "", err
	}
	return card.ID, nil
}

// ListBoards never fails: a Trello error is logged and an empty slice is
// returned.
func (p *Planner) ListBoards(ctx context.Context) []models.BoardSummary {
	boards, err := p.boards.ListBoards(ctx)
	if err != nil {
		p.logger.Info("No boards listed. This isn't an issue, just a side effect of the Trello API", zap.Error(err))
		return []models.BoardSummary{}
	}

	summaries := make([]models.BoardSummary, 0, len(boards))
	for _, b := range boards {
		summaries = append(summaries, models.BoardSummary{ID: b.ID, Name: b.Name, URL: b.URL})
	}
	return summaries
}
