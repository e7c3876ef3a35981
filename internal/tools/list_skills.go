package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/scribe/internal/skills"
)

// ListSkillsTool lets the model discover the available skills and read a
// specific skill's instructions.
type ListSkillsTool struct {
	registry *skills.Registry
}

// NewListSkillsTool creates the skill listing tool.
func NewListSkillsTool(registry *skills.Registry) *ListSkillsTool {
	return &ListSkillsTool{registry: registry}
}

func (t *ListSkillsTool) Name() string {
	return "list_skills"
}

func (t *ListSkillsTool) Description() string {
	return `List the available skills, or fetch one skill's full instructions by name.
Call without arguments to see what skills exist. Call with a name to load
that skill's instructions before applying it.`
}

func (t *ListSkillsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {
				"type": "string",
				"description": "Skill name to fetch full instructions for"
			}
		}
	}`)
}

type listSkillsParams struct {
	Name string `json:"name"`
}

func (t *ListSkillsTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var p listSkillsParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return &Result{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
		}
	}

	if p.Name != "" {
		skill, ok := t.registry.Get(p.Name)
		if !ok {
			return &Result{Content: "skill not found: " + p.Name, IsError: true}, nil
		}
		out, err := json.Marshal(map[string]string{
			"name":         skill.Name,
			"description":  skill.Description,
			"instructions": skill.Content,
		})
		if err != nil {
			return &Result{Content: fmt.Sprintf("encode result: %v", err), IsError: true}, nil
		}
		return &Result{Content: string(out)}, nil
	}

	type summary struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	list := t.registry.List()
	summaries := make([]summary, len(list))
	for i, s := range list {
		summaries[i] = summary{Name: s.Name, Description: s.Description}
	}
	out, err := json.Marshal(map[string]any{"skills": summaries})
	if err != nil {
		return &Result{Content: fmt.Sprintf("encode result: %v", err), IsError: true}, nil
	}
	return &Result{Content: string(out)}, nil
}
