package coaching

import (
	"context"
	"encoding/json"
	"strings"

	model "github.com/zhouzirui/canvass-coach/backend/internal/model/coaching"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
)

// 未配置大模型时的规则回退，输出格式与模型一致，走同一套解析。
var argumentativePhrases = []string{
	"you're wrong", "you are wrong", "that's not true", "actually,", "but the facts", "you should",
}

var (
	personWords   = []string{"my mom", "my mother", "my dad", "my father", "my wife", "my husband", "my son", "my daughter", "my kid", "my friend", "my neighbor"}
	feelingWords  = []string{"scared", "afraid", "worried", "hard", "stress", "angry", "upset", "sad", "happy", "relieved", "tired"}
	pushbackWords = []string{"but ", "cost", "taxes", "can't afford", "don't think", "not sure", "worry"}
)

// HeuristicCoach grades by trigger keywords and suggests canned questions.
type HeuristicCoach struct {
	criteria map[string][]Criterion
}

func NewHeuristicCoach() *HeuristicCoach {
	return &HeuristicCoach{}
}

func (h *HeuristicCoach) ForScript(sc script.Script) Coach {
	return &HeuristicCoach{criteria: CriteriaFromScript(sc)}
}

func (h *HeuristicCoach) Evaluate(_ context.Context, _ string, newSlice, category string) (string, error) {
	voterText, canvasserText := splitSpeakers(newSlice)
	result := make(map[string]string)

	for _, c := range h.criteria[category] {
		switch {
		case len(c.Triggers) > 0 && containsAny(voterText, c.Triggers):
			result[c.ID] = MarkerPositive + " Reached: " + c.Text
		case c.Hint != "":
			result[c.ID] = MarkerHint + " " + c.Hint
		}
	}
	if containsAny(canvasserText, argumentativePhrases) {
		result[category+".listening"] = MarkerNegative + " Avoid arguing; ask about their experience instead."
	}

	return tagged(feedbackTag, result)
}

func (h *HeuristicCoach) SuggestCue(_ context.Context, fullTranscript string) (string, error) {
	lastVoter := ""
	for _, line := range strings.Split(fullTranscript, "\n") {
		if rest, ok := strings.CutPrefix(line, "Voter: "); ok {
			lastVoter = strings.ToLower(rest)
		}
	}
	if lastVoter == "" {
		return tagged(cueTag, struct{}{})
	}

	var cue model.Cue
	switch {
	case containsAny(lastVoter, personWords):
		cue = model.Cue{Text: "What was that time like for the person you mentioned?", Rationale: "They brought up someone close to them.", Kind: model.CuePerson}
	case containsAny(lastVoter, feelingWords):
		cue = model.Cue{Text: "How did that feel for you?", Rationale: "They named a feeling worth staying with.", Kind: model.CueFeeling}
	case containsAny(lastVoter, pushbackWords):
		cue = model.Cue{Text: "What makes you see it that way?", Rationale: "Understand the concern before responding to it.", Kind: model.CuePerspective}
	default:
		return tagged(cueTag, struct{}{})
	}
	return tagged(cueTag, cue)
}

func splitSpeakers(text string) (voter, canvasser string) {
	var v, c strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if rest, ok := strings.CutPrefix(line, "Voter: "); ok {
			v.WriteString(strings.ToLower(rest))
			v.WriteString("\n")
		} else if rest, ok := strings.CutPrefix(line, "Canvasser: "); ok {
			c.WriteString(strings.ToLower(rest))
			c.WriteString("\n")
		}
	}
	return v.String(), c.String()
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func tagged(tag string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return "<" + tag + ">" + string(raw) + "</" + tag + ">", nil
}
