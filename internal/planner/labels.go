package planner

import (
	"context"
	"slices"

	"github.com/chxlky/trello-board-planner/internal/models"
	"go.uber.org/zap"
)

// FallbackLabelColor is used for every label name that is not itself a
// Trello color.
const FallbackLabelColor = "blue"

var labelColors = []string{"green", "yellow", "orange", "red", "purple", "blue"}

// LabelColor maps a label name to the color it is created with.
func LabelColor(name string) string {
	if slices.Contains(labelColors, name) {
		return name
	}
	return FallbackLabelColor
}

// LabelRegistry creates at most one label per color on a board and hands
// the same label to every card asking for that color. Different
// unrecognised names therefore share one blue label, named after the first
// name that needed it.
type LabelRegistry struct {
	boards  BoardService
	boardID string
	byColor map[string]models.Label
	logger  *zap.Logger
}

func NewLabelRegistry(boards BoardService, boardID string, logger *zap.Logger) *LabelRegistry {
	return &LabelRegistry{
		boards:  boards,
		boardID: boardID,
		byColor: make(map[string]models.Label),
		logger:  logger,
	}
}

func (r *LabelRegistry) Resolve(ctx context.Context, name string) (models.Label, error) {
	color := LabelColor(name)
	if label, ok := r.byColor[color]; ok {
		if label.Name != name {
			r.logger.Debug("Reusing label of the same color",
				zap.String("requested", name),
				zap.String("label", label.Name),
				zap.String("color", color),
			)
		}
		return label, nil
	}

	label, err := r.boards.CreateLabel(ctx, r.boardID, name, color)
	if err != nil {
		return models.Label{}, err
	}
	r.byColor[color] = label
	return label, nil
}

// Len reports how many labels have been created.
func (r *LabelRegistry) Len() int {
	return len(r.byColor)
}
