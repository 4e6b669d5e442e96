package voice

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
)

func decodeLive(t *testing.T, raw string) LiveFrame {
	t.Helper()
	var f LiveFrame
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		t.Fatalf("decode live frame: %v", err)
	}
	f.ReceivedAt = time.Unix(100, 0)
	return f
}

func TestNormalizeLiveAssistantWithProsody(t *testing.T) {
	f := decodeLive(t, `{
		"type": "assistant_message",
		"id": "msg-7",
		"message": {"role": "assistant", "content": " I'm a bit busy. "},
		"models": {"prosody": {"scores": {"Joy": 0.25, "Anger": 1.7, "Doubt": -0.2, "Label": "calm", "Missing": null}}}
	}`)

	got, ok := NormalizeLive(f, 3)
	if !ok {
		t.Fatal("expected a message")
	}
	want := transcript.Message{
		ID:        "msg-7",
		Role:      transcript.Voter,
		Content:   "I'm a bit busy.",
		Timestamp: time.Unix(100, 0),
		Emotions:  transcript.Emotions{"Joy": 0.25, "Anger": 1, "Doubt": 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("NormalizeLive mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeLiveUserMessage(t *testing.T) {
	final := decodeLive(t, `{"type":"user_message","message":{"role":"user","content":"Hello"}}`)
	got, ok := NormalizeLive(final, 4)
	if !ok {
		t.Fatal("expected final user message")
	}
	if got.Role != transcript.Canvasser || got.ID != "live-4" {
		t.Fatalf("unexpected message %+v", got)
	}
	if got.Emotions != nil {
		t.Fatalf("expected nil emotions when none reported, got %v", got.Emotions)
	}

	interim := decodeLive(t, `{"type":"user_message","interim":true,"message":{"role":"user","content":"Hel"}}`)
	if _, ok := NormalizeLive(interim, 5); ok {
		t.Fatal("interim caption must not become a message")
	}
}

func TestNormalizeLiveControlFrames(t *testing.T) {
	for _, raw := range []string{
		`{"type":"audio_output","data":"AAAA"}`,
		`{"type":"chat_metadata","chat_id":"c1"}`,
		`{"type":"user_interruption"}`,
		`{"type":"error","code":"E0100","message":"bad config"}`,
		`{"type":"assistant_message","message":{"role":"assistant","content":"   "}}`,
	} {
		if _, ok := NormalizeLive(decodeLive(t, raw), 0); ok {
			t.Fatalf("expected frame to be dropped: %s", raw)
		}
	}
}

func TestLiveErrorText(t *testing.T) {
	f := decodeLive(t, `{"type":"error","code":"E0100","message":"bad config"}`)
	if got := f.ErrorText(); got != "bad config (E0100)" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeAlternate(t *testing.T) {
	results, err := DecodeAlternateFrame([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Hi, do you have a minute?","confidence":0.9}]}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := NormalizeAlternate(results, 0)
	if !ok || got.Role != transcript.Canvasser || got.Content != "Hi, do you have a minute?" || got.ID != "alternate-0" {
		t.Fatalf("unexpected results message %+v ok=%v", got, ok)
	}

	partial, _ := DecodeAlternateFrame([]byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hi do"}]}}`))
	if _, ok := NormalizeAlternate(partial, 1); ok {
		t.Fatal("non-final results must be dropped")
	}

	agent, _ := DecodeAlternateFrame([]byte(`{"type":"ConversationText","role":"assistant","content":"Sure, go ahead.","emotions":{"interest":0.4,"note":"x"}}`))
	got, ok = NormalizeAlternate(agent, 2)
	if !ok || got.Role != transcript.Voter {
		t.Fatalf("unexpected agent message %+v ok=%v", got, ok)
	}
	if diff := cmp.Diff(transcript.Emotions{"interest": 0.4}, got.Emotions); diff != "" {
		t.Fatalf("emotions mismatch (-want +got):\n%s", diff)
	}

	echo, _ := DecodeAlternateFrame([]byte(`{"type":"ConversationText","role":"user","content":"Hi, do you have a minute?"}`))
	if _, ok := NormalizeAlternate(echo, 3); ok {
		t.Fatal("user ConversationText duplicates Results and must be dropped")
	}
}

func TestNormalizeReplayClampsAndKeepsIDs(t *testing.T) {
	f := ReplayFrame{
		Message: transcript.Message{
			ID: "rec-1", Role: transcript.Voter, Content: "ok",
			Emotions: transcript.Emotions{"joy": 2, "anger": -1},
		},
		ReceivedAt: time.Unix(5, 0),
	}
	got, ok := Normalize(f, 9)
	if !ok {
		t.Fatal("expected message")
	}
	if got.ID != "rec-1" || got.Emotions["joy"] != 1 || got.Emotions["anger"] != 0 {
		t.Fatalf("unexpected message %+v", got)
	}

	mock := ReplayFrame{Message: transcript.Message{Role: transcript.Canvasser, Content: "hi"}, Origin: KindMock}
	got, _ = Normalize(mock, 2)
	if got.ID != "mock-2" {
		t.Fatalf("got id %s want mock-2", got.ID)
	}
}
