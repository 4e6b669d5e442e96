package coaching

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	model "github.com/zhouzirui/canvass-coach/backend/internal/model/coaching"
)

const (
	feedbackTag = "feedback"
	cueTag      = "cue"
)

// Marker prefixes understood in evaluator output.
const (
	MarkerPositive = "✅"
	MarkerNegative = "⚠️"
	MarkerHint     = "❓"
	MarkerNeutral  = "ℹ️"
)

// EvaluationParseError reports a response without a usable tagged block.
// It is recovered locally and never affects the session.
type EvaluationParseError struct {
	Tag    string
	Reason string
	Err    error
}

func (e *EvaluationParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse <%s> block: %s: %v", e.Tag, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse <%s> block: %s", e.Tag, e.Reason)
}

func (e *EvaluationParseError) Unwrap() error { return e.Err }

// extractTagged returns the body of the first <tag>...</tag> block.
func extractTagged(content, tag string) (string, error) {
	open := "<" + tag + ">"
	closing := "</" + tag + ">"

	start := strings.Index(content, open)
	if start == -1 {
		return "", &EvaluationParseError{Tag: tag, Reason: "missing opening tag"}
	}
	body := content[start+len(open):]
	end := strings.Index(body, closing)
	if end == -1 {
		return "", &EvaluationParseError{Tag: tag, Reason: "missing closing tag"}
	}
	return strings.TrimSpace(body[:end]), nil
}

// ClassifyMarker maps the leading marker to a kind and strips it.
// Unmarked text is neutral and returned unchanged apart from trimming.
func ClassifyMarker(text string) (model.Kind, string) {
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, MarkerPositive):
		return model.KindPositive, strip(trimmed, MarkerPositive)
	case strings.HasPrefix(trimmed, MarkerNegative):
		return model.KindNegative, strip(trimmed, MarkerNegative)
	case strings.HasPrefix(trimmed, "⚠"):
		// some models drop the variation selector
		return model.KindNegative, strip(trimmed, "⚠")
	case strings.HasPrefix(trimmed, MarkerHint):
		return model.KindHint, strip(trimmed, MarkerHint)
	case strings.HasPrefix(trimmed, MarkerNeutral):
		return model.KindNeutral, strip(trimmed, MarkerNeutral)
	default:
		return model.KindNeutral, trimmed
	}
}

func strip(text, marker string) string {
	return strings.TrimSpace(strings.TrimPrefix(text, marker))
}

// ParseFeedback reads the <feedback> block as a map of criterion id to marked text.
func ParseFeedback(content string) (model.Feedback, error) {
	body, err := extractTagged(content, feedbackTag)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, &EvaluationParseError{Tag: feedbackTag, Reason: "invalid json", Err: err}
	}

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make(model.Feedback, len(raw))
	for _, id := range ids {
		text, ok := raw[id].(string)
		criterion := strings.TrimSpace(id)
		if !ok || criterion == "" {
			continue
		}
		kind, display := ClassifyMarker(text)
		out[criterion] = model.FeedbackItem{CriterionID: criterion, Kind: kind, Text: display}
	}
	return out, nil
}

type cuePayload struct {
	Text      string `json:"text"`
	Rationale string `json:"rationale"`
	Kind      string `json:"kind"`
}

// ParseCue reads the <cue> block. An empty object means no cue and yields nil, nil.
func ParseCue(content string) (*model.Cue, error) {
	body, err := extractTagged(content, cueTag)
	if err != nil {
		return nil, err
	}

	var payload cuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, &EvaluationParseError{Tag: cueTag, Reason: "invalid json", Err: err}
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return nil, nil
	}

	kind := model.CueKind(strings.ToLower(strings.TrimSpace(payload.Kind)))
	if !model.ValidCueKind(kind) {
		kind = model.CueFraming
	}
	return &model.Cue{Text: text, Rationale: strings.TrimSpace(payload.Rationale), Kind: kind}, nil
}
