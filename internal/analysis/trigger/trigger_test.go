package trigger

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
)

func voter(text string) transcript.Message {
	return transcript.Message{Role: transcript.Voter, Content: text, Timestamp: time.Unix(0, 0)}
}

func canvasser(text string) transcript.Message {
	return transcript.Message{Role: transcript.Canvasser, Content: text, Timestamp: time.Unix(0, 0)}
}

func threeSteps() script.Script {
	return script.Script{
		ID: "t",
		Steps: []script.Step{
			{ID: "open", Items: []script.Item{{Text: "info"}, {Text: "busy", Triggers: []string{"busy"}}}},
			{ID: "rate", Items: []script.Item{{Text: "rate", Triggers: []string{"out of ten"}}}},
			{ID: "close", Items: []script.Item{{Text: "bye", Triggers: []string{"goodbye"}}}},
		},
	}
}

func TestBusyTriggersFirstStep(t *testing.T) {
	sc := script.Script{Steps: []script.Step{{ID: "s", Items: []script.Item{{Triggers: []string{"busy"}}}}}}

	got := Progress([]transcript.Message{voter("I'm a bit busy right now")}, sc)
	if !got.StepTriggered(0) {
		t.Fatalf("expected step 0 triggered, got %+v", got)
	}
	if !got.ItemTriggered(0, 0) {
		t.Fatalf("expected item 0:0 triggered, got %+v", got)
	}
}

func TestNoMatchLeavesEmptyState(t *testing.T) {
	got := Progress([]transcript.Message{voter("Nice weather today")}, threeSteps())
	want := State{TriggeredSteps: []int{}, TriggeredItems: []string{}, CurrentStep: 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Progress mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchingIsCaseInsensitive(t *testing.T) {
	got := Progress([]transcript.Message{voter("Honestly I'm BUSY")}, threeSteps())
	if !got.ItemTriggered(0, 1) {
		t.Fatalf("expected uppercase utterance to match, got %+v", got)
	}
}

func TestCanvasserTurnsNeverTrigger(t *testing.T) {
	got := Progress([]transcript.Message{canvasser("are you busy?")}, threeSteps())
	if len(got.TriggeredSteps) != 0 {
		t.Fatalf("canvasser speech triggered %v", got.TriggeredSteps)
	}
}

func TestInformationalItemsNeverTrigger(t *testing.T) {
	got := Progress([]transcript.Message{voter("info info info")}, threeSteps())
	if got.ItemTriggered(0, 0) {
		t.Fatal("item without triggers was marked")
	}
}

func TestDeterministic(t *testing.T) {
	msgs := []transcript.Message{voter("busy"), canvasser("ok"), voter("maybe six out of ten")}
	a := Progress(msgs, threeSteps())
	b := Progress(msgs, threeSteps())
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("non-deterministic result (-first +second):\n%s", diff)
	}
}

func TestFlagsAccumulateAcrossTurns(t *testing.T) {
	sc := threeSteps()
	msgs := []transcript.Message{
		voter("sorry I'm busy"),
		canvasser("just two minutes"),
		voter("fine"),
		voter("six out of ten"),
		voter("ok"),
	}

	var previous State
	for k := 1; k <= len(msgs); k++ {
		state := Progress(msgs[:k], sc)
		for _, key := range previous.TriggeredItems {
			found := false
			for _, got := range state.TriggeredItems {
				if got == key {
					found = true
				}
			}
			if !found {
				t.Fatalf("item %s lost at prefix %d", key, k)
			}
		}
		if state.CurrentStep < previous.CurrentStep {
			t.Fatalf("current step regressed from %d to %d", previous.CurrentStep, state.CurrentStep)
		}
		previous = state
	}

	if previous.CurrentStep != 2 {
		t.Fatalf("expected current step 2, got %d", previous.CurrentStep)
	}
}

func TestStickyAtEnd(t *testing.T) {
	sc := threeSteps()
	msgs := []transcript.Message{voter("busy"), voter("five out of ten"), voter("goodbye")}

	state := Progress(msgs, sc)
	if state.CurrentStep != 2 {
		t.Fatalf("expected last step once all triggered, got %d", state.CurrentStep)
	}

	msgs = append(msgs, voter("something unrelated"), voter("busy again"))
	if got := Progress(msgs, sc).CurrentStep; got != 2 {
		t.Fatalf("current step moved after completion: %d", got)
	}
}

func TestEmptyScript(t *testing.T) {
	got := Progress([]transcript.Message{voter("busy")}, script.Script{})
	if got.CurrentStep != 0 || len(got.TriggeredSteps) != 0 {
		t.Fatalf("unexpected state for empty script: %+v", got)
	}
	if cat := got.CurrentCategory(script.Script{}); cat != "" {
		t.Fatalf("expected empty category, got %q", cat)
	}
}

func TestCurrentCategoryAndHints(t *testing.T) {
	sc := script.Seed()[0]
	state := Progress([]transcript.Message{voter("I'm kind of busy")}, sc)

	if got := state.CurrentCategory(sc); got != "initial-rating" {
		t.Fatalf("got category %s want initial-rating", got)
	}
	hints := state.Hints(sc)
	if len(hints) == 0 {
		t.Fatal("expected hints for the rating step")
	}
}
