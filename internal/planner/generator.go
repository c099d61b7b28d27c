package planner

import (
	"context"

	"github.com/chxlky/trello-board-planner/internal/models"
)

// Completer is a text-in/text-out language model call.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMGenerator turns a project description into a BoardPlan with a single
// completion per call.
type LLMGenerator struct {
	completer Completer
}

func NewLLMGenerator(completer Completer) *LLMGenerator {
	return &LLMGenerator{completer: completer}
}

func (g *LLMGenerator) GeneratePlan(ctx context.Context, description string) (*models.BoardPlan, error) {
	prompt, err := RenderPrompt(description)
	if err != nil {
		return nil, err
	}

	raw, err := g.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return ParsePlan(raw)
}
