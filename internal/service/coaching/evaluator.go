package coaching

import (
	"context"
	"strconv"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
)

// Evaluator grades the newest slice of a conversation against one category.
// The response is free text holding a <feedback>{...}</feedback> block.
type Evaluator interface {
	Evaluate(ctx context.Context, fullTranscript, newSlice, category string) (string, error)
}

// CueSuggester proposes the canvasser's next question. The response holds a
// <cue>{...}</cue> block; an empty object means no suggestion.
type CueSuggester interface {
	SuggestCue(ctx context.Context, fullTranscript string) (string, error)
}

// Coach bundles both collaborators.
type Coach interface {
	Evaluator
	CueSuggester
}

// Provider hands out a coach that knows the criteria of one script.
type Provider interface {
	ForScript(sc script.Script) Coach
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, fullTranscript, newSlice, category string) (string, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, fullTranscript, newSlice, category string) (string, error) {
	return f(ctx, fullTranscript, newSlice, category)
}

// CueSuggesterFunc adapts a function to CueSuggester.
type CueSuggesterFunc func(ctx context.Context, fullTranscript string) (string, error)

func (f CueSuggesterFunc) SuggestCue(ctx context.Context, fullTranscript string) (string, error) {
	return f(ctx, fullTranscript)
}

// Pair combines separate collaborators into a Coach.
type Pair struct {
	Evaluator
	CueSuggester
}

// StaticProvider returns the same coach for every script.
type StaticProvider struct {
	Coach Coach
}

func (p StaticProvider) ForScript(script.Script) Coach { return p.Coach }

// Criterion is one gradable item of a script step.
type Criterion struct {
	ID       string
	Text     string
	Hint     string
	Triggers []string
}

// CriteriaFromScript lists the criteria of every step, keyed by step id.
// Criterion ids are "<step id>.<item position>".
func CriteriaFromScript(sc script.Script) map[string][]Criterion {
	out := make(map[string][]Criterion, len(sc.Steps))
	for _, step := range sc.Steps {
		criteria := make([]Criterion, 0, len(step.Items))
		for i, item := range step.Items {
			criteria = append(criteria, Criterion{
				ID:       criterionID(step.ID, i),
				Text:     item.Text,
				Hint:     item.Hint,
				Triggers: item.Triggers,
			})
		}
		out[step.ID] = criteria
	}
	return out
}

func criterionID(stepID string, item int) string {
	return stepID + "." + strconv.Itoa(item)
}
