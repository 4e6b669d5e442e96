package trigger

import (
	"sort"
	"strconv"
	"strings"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
)

// State is the script progress derived from a transcript.
type State struct {
	TriggeredSteps []int    `json:"triggeredSteps"`
	TriggeredItems []string `json:"triggeredItems"`
	CurrentStep    int      `json:"currentStep"`
}

// ItemKey identifies an item by its step and item position.
func ItemKey(step, item int) string {
	return strconv.Itoa(step) + ":" + strconv.Itoa(item)
}

// Progress recomputes script progress from the full transcript.
//
// Each voter turn is matched on its own, as if it were the latest utterance at
// that point of the conversation. Flags raised by earlier turns are kept, so the
// result only grows as the transcript is extended.
func Progress(messages []transcript.Message, sc script.Script) State {
	steps := make(map[int]struct{})
	items := make(map[string]struct{})

	for _, msg := range messages {
		if msg.Role != transcript.Voter {
			continue
		}
		match(strings.ToLower(msg.Content), sc, steps, items)
	}

	state := State{
		TriggeredSteps: make([]int, 0, len(steps)),
		TriggeredItems: make([]string, 0, len(items)),
	}
	for idx := range steps {
		state.TriggeredSteps = append(state.TriggeredSteps, idx)
	}
	for key := range items {
		state.TriggeredItems = append(state.TriggeredItems, key)
	}
	sort.Ints(state.TriggeredSteps)
	sort.Strings(state.TriggeredItems)

	state.CurrentStep = currentStep(len(sc.Steps), steps)
	return state
}

func match(utterance string, sc script.Script, steps map[int]struct{}, items map[string]struct{}) {
	if utterance == "" {
		return
	}
	for si, step := range sc.Steps {
		for ii, item := range step.Items {
			if item.Informational() || !containsAny(utterance, item.Triggers) {
				continue
			}
			items[ItemKey(si, ii)] = struct{}{}
			steps[si] = struct{}{}
		}
	}
}

func containsAny(utterance string, triggers []string) bool {
	for _, trigger := range triggers {
		trigger = strings.ToLower(strings.TrimSpace(trigger))
		if trigger != "" && strings.Contains(utterance, trigger) {
			return true
		}
	}
	return false
}

func currentStep(total int, triggered map[int]struct{}) int {
	if total == 0 {
		return 0
	}
	for i := 0; i < total; i++ {
		if _, ok := triggered[i]; !ok {
			return i
		}
	}
	return total - 1
}

// StepTriggered reports whether step i has been reached.
func (s State) StepTriggered(i int) bool {
	idx := sort.SearchInts(s.TriggeredSteps, i)
	return idx < len(s.TriggeredSteps) && s.TriggeredSteps[idx] == i
}

// ItemTriggered reports whether the item at (step, item) has been reached.
func (s State) ItemTriggered(step, item int) bool {
	key := ItemKey(step, item)
	idx := sort.SearchStrings(s.TriggeredItems, key)
	return idx < len(s.TriggeredItems) && s.TriggeredItems[idx] == key
}

// CurrentCategory returns the id of the current step, used as the feedback category.
func (s State) CurrentCategory(sc script.Script) string {
	return sc.StepID(s.CurrentStep)
}

// Hints returns the hints of untriggered items in the current step.
func (s State) Hints(sc script.Script) []string {
	if s.CurrentStep < 0 || s.CurrentStep >= len(sc.Steps) {
		return nil
	}
	var hints []string
	for ii, item := range sc.Steps[s.CurrentStep].Items {
		if item.Hint == "" || s.ItemTriggered(s.CurrentStep, ii) {
			continue
		}
		hints = append(hints, item.Hint)
	}
	return hints
}
