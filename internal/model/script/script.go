package script

import (
	"errors"
	"fmt"
	"strings"
)

// Item is one talking point inside a step. Triggers are lower-cased substrings
// that, when heard from the voter, mark the item as reached.
type Item struct {
	Text     string   `json:"text" yaml:"text"`
	Triggers []string `json:"triggers,omitempty" yaml:"triggers,omitempty"`
	Hint     string   `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// Step groups the items of one phase of the conversation.
type Step struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Items []Item `json:"items" yaml:"items"`
}

// Script is the ordered conversation guide a trainee practices against.
type Script struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step `json:"steps" yaml:"steps"`
}

var (
	ErrScriptID    = errors.New("script id is required")
	ErrScriptSteps = errors.New("script must contain at least one step")
)

// Informational reports whether the item can never auto-trigger.
func (i Item) Informational() bool {
	return len(i.Triggers) == 0
}

// Validate checks the structural requirements of a script.
func (s Script) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return ErrScriptID
	}
	if len(s.Steps) == 0 {
		return ErrScriptSteps
	}

	seen := make(map[string]struct{}, len(s.Steps))
	for i, step := range s.Steps {
		if strings.TrimSpace(step.ID) == "" {
			return fmt.Errorf("script %s: step %d has no id", s.ID, i)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("script %s: duplicate step id %q", s.ID, step.ID)
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}

// Normalize trims text and lower-cases triggers, dropping empty ones.
func Normalize(s Script) Script {
	out := Script{
		ID:          strings.TrimSpace(s.ID),
		Title:       strings.TrimSpace(s.Title),
		Description: strings.TrimSpace(s.Description),
		Steps:       make([]Step, 0, len(s.Steps)),
	}

	for _, step := range s.Steps {
		normalized := Step{
			ID:    strings.TrimSpace(step.ID),
			Title: strings.TrimSpace(step.Title),
			Items: make([]Item, 0, len(step.Items)),
		}
		for _, item := range step.Items {
			var triggers []string
			for _, trigger := range item.Triggers {
				trigger = strings.ToLower(strings.TrimSpace(trigger))
				if trigger != "" {
					triggers = append(triggers, trigger)
				}
			}
			normalized.Items = append(normalized.Items, Item{
				Text:     strings.TrimSpace(item.Text),
				Triggers: triggers,
				Hint:     strings.TrimSpace(item.Hint),
			})
		}
		out.Steps = append(out.Steps, normalized)
	}
	return out
}

// StepID returns the id of step index i, or "" when out of range.
func (s Script) StepID(i int) string {
	if i < 0 || i >= len(s.Steps) {
		return ""
	}
	return s.Steps[i].ID
}
