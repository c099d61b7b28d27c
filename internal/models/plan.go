package models

// CardPlan is a single task the language model wants on the board.
type CardPlan struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Members     []string `json:"members,omitempty" validate:"omitempty,dive,required"`
	Labels      []string `json:"labels,omitempty" validate:"omitempty,dive,required"`
}

type ListPlan struct {
	Name  string     `json:"name" validate:"required"`
	Cards []CardPlan `json:"cards" validate:"required,dive"`
}

// BoardPlan is the parsed output of plan generation. Lists and cards are
// created in slice order.
type BoardPlan struct {
	Name        string     `json:"name" validate:"required"`
	Description string     `json:"description" validate:"required"`
	Lists       []ListPlan `json:"lists" validate:"required,dive"`
}

// CardCount returns the total number of cards across all lists.
func (p *BoardPlan) CardCount() int {
	n := 0
	for _, l := range p.Lists {
		n += len(l.Cards)
	}
	return n
}
