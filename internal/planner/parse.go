package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/chxlky/trello-board-planner/internal/models"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidPlan wraps every parse or validation failure of a model response.
var ErrInvalidPlan = errors.New("invalid board plan")

var validate = validator.New()

// ParsePlan decodes a model response into a BoardPlan. Required fields,
// field types and nesting must match exactly; nothing is repaired or
// defaulted.
func ParsePlan(raw string) (*models.BoardPlan, error) {
	text := extractJSON(raw)
	if text == "" {
		return nil, fmt.Errorf("%w: response contains no JSON object", ErrInvalidPlan)
	}

	var plan models.BoardPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	if err := checkFieldNames(json.RawMessage(text), boardPlanFields, "BoardPlan"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	if err := validate.Struct(&plan); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(fields, ", "))
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	return &plan, nil
}

// fieldSet lists the JSON keys of one object level of the plan and the
// array-valued keys whose elements are objects of the next level.
type fieldSet struct {
	names  []string
	nested map[string]fieldSet
}

var boardPlanFields = fieldSet{
	names: []string{"name", "description", "lists"},
	nested: map[string]fieldSet{
		"lists": {
			names: []string{"name", "cards"},
			nested: map[string]fieldSet{
				"cards": {names: []string{"title", "description", "members", "labels"}},
			},
		},
	},
}

// checkFieldNames rejects keys that only match a plan field when case is
// ignored; encoding/json would otherwise accept "TITLE" for "title".
// Unrelated keys are ignored and shape errors are left to json.Unmarshal.
func checkFieldNames(raw json.RawMessage, set fieldSet, path string) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		if slices.Contains(set.names, key) {
			next, ok := set.nested[key]
			if !ok {
				continue
			}
			var items []json.RawMessage
			if err := json.Unmarshal(obj[key], &items); err != nil {
				continue
			}
			for i, item := range items {
				if err := checkFieldNames(item, next, fmt.Sprintf("%s.%s[%d]", path, key, i)); err != nil {
					return err
				}
			}
			continue
		}
		for _, name := range set.names {
			if strings.EqualFold(key, name) {
				return fmt.Errorf("%s: unknown field %q (did you mean %q?)", path, key, name)
			}
		}
	}
	return nil
}

// extractJSON strips a Markdown code fence if present, otherwise returns the
// span from the first '{' to the last '}'.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)

	if start := strings.Index(text, "```"); start >= 0 {
		body := text[start+3:]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			// drop the info string, e.g. ```json
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		text = strings.TrimSpace(body)
	}

	first := strings.IndexByte(text, '{')
	last := strings.LastIndexByte(text, '}')
	if first < 0 || last < first {
		return ""
	}
	return text[first : last+1]
}
