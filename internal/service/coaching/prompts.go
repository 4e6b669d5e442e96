package coaching

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"

	model "github.com/zhouzirui/canvass-coach/backend/internal/model/coaching"
)

// 提示词使用 Go template 语法，eino 链与 Gemini 渲染结果一致。
const feedbackSystemPrompt = `You are a coach for deep canvassing, a door-to-door conversation technique built on
non-judgmental listening and exchanging personal stories.

Review the canvasser's latest turns for the step "{{.category}}".
Criteria for this step:
{{.criteria}}

Reply with exactly one block and nothing else of substance:
<feedback>{"<criterion id>": "<marker> <one short sentence>"}</feedback>

Start every value with one marker:
✅ the canvasser did this well
⚠️ the canvasser missed it or worked against it
❓ a question the canvasser could try next
ℹ️ a neutral observation
Only include criteria the new turns give evidence for.`

const feedbackUserPrompt = `Full conversation so far:
{{.transcript}}

New since the last review:
{{.slice}}`

const cueSystemPrompt = `You are a deep canvassing coach whispering to a trainee during a live conversation.
Suggest at most one question the canvasser could ask next to draw out the voter's
own experience. Prefer questions about a specific person, a feeling, the voter's
perspective, or a gentle reframing.

Reply with exactly one block:
<cue>{...}</cue>
The object must match this JSON schema:
{{.schema}}
Reply with <cue>{}</cue> when no question would help right now.`

const cueUserPrompt = `Conversation so far:
{{.transcript}}`

var (
	cueSchemaOnce sync.Once
	cueSchemaText string
)

// cueSchema renders the JSON schema of the cue payload for the prompt.
func cueSchema() string {
	cueSchemaOnce.Do(func() {
		reflector := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
		raw, err := json.MarshalIndent(reflector.Reflect(&model.Cue{}), "", "  ")
		if err != nil {
			cueSchemaText = `{"type":"object","properties":{"text":{"type":"string"},"rationale":{"type":"string"},"kind":{"type":"string"}}}`
			return
		}
		cueSchemaText = string(raw)
	})
	return cueSchemaText
}

func formatCriteria(criteria []Criterion) string {
	if len(criteria) == 0 {
		return "- general: overall conversation quality"
	}
	var builder strings.Builder
	for i, c := range criteria {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString("- ")
		builder.WriteString(c.ID)
		builder.WriteString(": ")
		builder.WriteString(c.Text)
		if c.Hint != "" {
			builder.WriteString(" (tip: ")
			builder.WriteString(c.Hint)
			builder.WriteString(")")
		}
	}
	return builder.String()
}

func feedbackInput(criteria map[string][]Criterion, fullTranscript, newSlice, category string) map[string]any {
	return map[string]any{
		"category":   category,
		"criteria":   formatCriteria(criteria[category]),
		"transcript": fallbackText(fullTranscript),
		"slice":      fallbackText(newSlice),
	}
}

func cueInput(fullTranscript string) map[string]any {
	return map[string]any{
		"schema":     cueSchema(),
		"transcript": fallbackText(fullTranscript),
	}
}

func fallbackText(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(nothing yet)"
	}
	return s
}
