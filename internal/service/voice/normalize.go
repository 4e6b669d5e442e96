package voice

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/canvass-coach/backend/internal/analysis/emotion"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
)

// Frame is a raw event produced by one backend.
type Frame interface {
	Source() Kind
}

// Normalize maps a backend frame to a canonical message. The boolean is false
// for control frames that carry no transcript content.
func Normalize(frame Frame, pos int) (transcript.Message, bool) {
	switch f := frame.(type) {
	case LiveFrame:
		return NormalizeLive(f, pos)
	case *LiveFrame:
		return NormalizeLive(*f, pos)
	case AlternateFrame:
		return NormalizeAlternate(f, pos)
	case *AlternateFrame:
		return NormalizeAlternate(*f, pos)
	case ReplayFrame:
		return NormalizeReplay(f, pos)
	case *ReplayFrame:
		return NormalizeReplay(*f, pos)
	default:
		return transcript.Message{}, false
	}
}

// NormalizeLive handles user_message and assistant_message frames; interim
// captions and everything else are dropped.
func NormalizeLive(f LiveFrame, pos int) (transcript.Message, bool) {
	var role transcript.Role
	switch f.Type {
	case liveUserMessage:
		if f.Interim {
			return transcript.Message{}, false
		}
		role = transcript.Canvasser
	case liveAssistantMessage:
		role = transcript.Voter
	default:
		return transcript.Message{}, false
	}

	chat, ok := f.ChatMessage()
	if !ok {
		return transcript.Message{}, false
	}
	content := strings.TrimSpace(chat.Content)
	if content == "" {
		return transcript.Message{}, false
	}

	var scores map[string]any
	if f.Models != nil && f.Models.Prosody != nil {
		scores = f.Models.Prosody.Scores
	}

	return transcript.Message{
		ID:        messageID(f.ID, KindLive, pos),
		Role:      role,
		Content:   content,
		Timestamp: stamp(f.ReceivedAt),
		Emotions:  numericEmotions(scores),
	}, true
}

// NormalizeAlternate handles final Results (canvasser speech) and assistant
// ConversationText (voter speech).
func NormalizeAlternate(f AlternateFrame, pos int) (transcript.Message, bool) {
	switch f.Type {
	case alternateResults:
		if f.Transcript == nil || !f.Transcript.IsFinal || len(f.Transcript.Channel.Alternatives) == 0 {
			return transcript.Message{}, false
		}
		content := strings.TrimSpace(f.Transcript.Channel.Alternatives[0].Transcript)
		if content == "" {
			return transcript.Message{}, false
		}
		return transcript.Message{
			ID:        messageID(f.ID, KindAlternate, pos),
			Role:      transcript.Canvasser,
			Content:   content,
			Timestamp: stamp(f.ReceivedAt),
		}, true

	case alternateConversationText:
		role := strings.ToLower(strings.TrimSpace(f.Role))
		if role != "assistant" && role != "agent" {
			// the canvasser's words already arrived as Results
			return transcript.Message{}, false
		}
		content := strings.TrimSpace(f.Content)
		if content == "" {
			return transcript.Message{}, false
		}
		return transcript.Message{
			ID:        messageID(f.ID, KindAlternate, pos),
			Role:      transcript.Voter,
			Content:   content,
			Timestamp: stamp(f.ReceivedAt),
			Emotions:  numericEmotions(f.Emotions),
		}, true
	}
	return transcript.Message{}, false
}

// NormalizeReplay re-validates a recorded message.
func NormalizeReplay(f ReplayFrame, pos int) (transcript.Message, bool) {
	msg := f.Message
	content := strings.TrimSpace(msg.Content)
	if content == "" || (msg.Role != transcript.Canvasser && msg.Role != transcript.Voter) {
		return transcript.Message{}, false
	}

	var emotions transcript.Emotions
	for name, value := range msg.Emotions {
		clamped, ok := emotion.Clamp(value)
		if !ok {
			continue
		}
		if emotions == nil {
			emotions = make(transcript.Emotions, len(msg.Emotions))
		}
		emotions[name] = clamped
	}

	return transcript.Message{
		ID:        messageID(msg.ID, f.Source(), pos),
		Role:      msg.Role,
		Content:   content,
		Timestamp: stamp(f.ReceivedAt),
		Emotions:  emotions,
	}, true
}

// numericEmotions keeps only channels reported as numbers. Missing or
// non-numeric channels are omitted rather than zeroed.
func numericEmotions(raw map[string]any) transcript.Emotions {
	var out transcript.Emotions
	for name, value := range raw {
		var v float64
		switch n := value.(type) {
		case float64:
			v = n
		case float32:
			v = float64(n)
		case int:
			v = float64(n)
		case int64:
			v = float64(n)
		case json.Number:
			parsed, err := n.Float64()
			if err != nil {
				continue
			}
			v = parsed
		default:
			continue
		}
		clamped, ok := emotion.Clamp(v)
		if !ok {
			continue
		}
		if out == nil {
			out = make(transcript.Emotions, len(raw))
		}
		out[name] = clamped
	}
	return out
}

func messageID(backendID string, source Kind, pos int) string {
	if id := strings.TrimSpace(backendID); id != "" {
		return id
	}
	return string(source) + "-" + strconv.Itoa(pos)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
