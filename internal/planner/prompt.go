package planner

import (
	"fmt"
	"strings"
	"text/template"
)

const promptTemplate = `Create a Trello board structure for this project description:
{{.Description}}

Create a board with these lists in order:
1. Backlog: Place all initial tasks and future enhancements here
2. To Do: Only include immediate, ready-to-start tasks
3. In Progress: Leave empty (for tasks that are being worked on)
4. Review: Leave empty (for tasks pending review)
5. Done: Leave empty (for completed tasks)

Break down the project into specific, actionable tasks and place them in either Backlog or To Do.
Place larger, future tasks in Backlog.
Place smaller, immediate tasks in To Do.
Leave other lists empty as they will be used during project execution.
Add relevant labels to categorize tasks (e.g., feature, bug, docs).

{{.FormatInstructions}}`

// boardPlanSchema mirrors models.BoardPlan and its validate tags.
const boardPlanSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string", "description": "Name of the board"},
    "description": {"type": "string", "description": "Description of the board"},
    "lists": {
      "type": "array",
      "description": "Lists to create in the board",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "description": "Name of the list"},
          "cards": {
            "type": "array",
            "description": "List of cards in this list",
            "items": {
              "type": "object",
              "properties": {
                "title": {"type": "string", "description": "Title of the card"},
                "description": {"type": "string", "description": "Detailed description of the card"},
                "members": {"type": "array", "items": {"type": "string"}, "description": "List of member IDs to assign to the card"},
                "labels": {"type": "array", "items": {"type": "string"}, "description": "List of label colors or names"}
              },
              "required": ["title", "description"]
            }
          }
        },
        "required": ["name", "cards"]
      }
    }
  },
  "required": ["name", "description", "lists"]
}`

var prompt = template.Must(template.New("board").Parse(promptTemplate))

// FormatInstructions tells the model how to shape its answer so ParsePlan
// can read it.
func FormatInstructions() string {
	return "The output should be formatted as a JSON instance that conforms to the JSON schema below.\n" +
		"Respond with the JSON instance only, without commentary.\n\n" +
		"Here is the output schema:\n```\n" + boardPlanSchema + "\n```"
}

// RenderPrompt embeds the project description into the board prompt.
func RenderPrompt(description string) (string, error) {
	var sb strings.Builder
	err := prompt.Execute(&sb, struct {
		Description        string
		FormatInstructions string
	}{
		Description:        description,
		FormatInstructions: FormatInstructions(),
	})
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return sb.String(), nil
}
