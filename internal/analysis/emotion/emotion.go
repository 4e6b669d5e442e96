package emotion

import (
	"math"
	"sort"
	"strings"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
)

// Score 是单个情绪通道及其强度。
type Score struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Mood 是对选民情绪通道的粗粒度归类，供前端展示。
type Mood string

const (
	MoodUnknown   Mood = "unknown"
	MoodEngaged   Mood = "engaged"
	MoodResistant Mood = "resistant"
	MoodMoved     Mood = "moved"
	MoodCalm      Mood = "calm"
)

var moodBuckets = map[Mood][]string{
	MoodEngaged:   {"interest", "curiosity", "amusement", "excitement", "joy", "realization", "surprise (positive)"},
	MoodResistant: {"anger", "annoyance", "contempt", "disapproval", "doubt", "boredom", "disgust", "skepticism"},
	MoodMoved:     {"sadness", "sympathy", "empathic pain", "nostalgia", "distress", "love", "tiredness"},
	MoodCalm:      {"calmness", "contentment", "satisfaction", "relief", "neutral"},
}

// Clamp 将强度限制在 [0,1]，NaN 视为无效。
func Clamp(v float64) (float64, bool) {
	if math.IsNaN(v) {
		return 0, false
	}
	return math.Max(0, math.Min(1, v)), true
}

// Top 返回强度最高的 n 个通道，强度相同时按名称排序。
func Top(emotions transcript.Emotions, n int) []Score {
	if len(emotions) == 0 || n <= 0 {
		return nil
	}

	scores := make([]Score, 0, len(emotions))
	for name, value := range emotions {
		scores = append(scores, Score{Name: name, Value: value})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Value != scores[j].Value {
			return scores[i].Value > scores[j].Value
		}
		return scores[i].Name < scores[j].Name
	})

	if len(scores) > n {
		scores = scores[:n]
	}
	return scores
}

// Average 对一组消息中出现过的通道求平均值；未上报的通道不计入分母。
func Average(messages []transcript.Message, role transcript.Role) transcript.Emotions {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, msg := range messages {
		if msg.Role != role {
			continue
		}
		for name, value := range msg.Emotions {
			sums[name] += value
			counts[name]++
		}
	}
	if len(sums) == 0 {
		return nil
	}

	out := make(transcript.Emotions, len(sums))
	for name, sum := range sums {
		out[name] = sum / float64(counts[name])
	}
	return out
}

// Classify 根据通道强度把情绪归入某个 Mood。
func Classify(emotions transcript.Emotions) Mood {
	if len(emotions) == 0 {
		return MoodUnknown
	}

	totals := make(map[Mood]float64)
	for name, value := range emotions {
		lowered := strings.ToLower(name)
		for mood, channels := range moodBuckets {
			for _, channel := range channels {
				if lowered == channel {
					totals[mood] += value
				}
			}
		}
	}

	best := MoodUnknown
	bestScore := 0.0
	// 固定顺序遍历，保证同分时结果稳定
	for _, mood := range []Mood{MoodEngaged, MoodResistant, MoodMoved, MoodCalm} {
		if totals[mood] > bestScore {
			best = mood
			bestScore = totals[mood]
		}
	}
	return best
}
