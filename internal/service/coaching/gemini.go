package coaching

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"google.golang.org/genai"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
)

const defaultGeminiModel = "gemini-2.5-flash"

var (
	feedbackSystemTmpl = template.Must(template.New("feedback-system").Parse(feedbackSystemPrompt))
	feedbackUserTmpl   = template.Must(template.New("feedback-user").Parse(feedbackUserPrompt))
	cueSystemTmpl      = template.Must(template.New("cue-system").Parse(cueSystemPrompt))
	cueUserTmpl        = template.Must(template.New("cue-user").Parse(cueUserPrompt))
)

// GeminiEvaluator 使用 Gemini API 生成反馈与提示。
type GeminiEvaluator struct {
	client   *genai.Client
	model    string
	criteria map[string][]Criterion
}

// NewGeminiEvaluator 创建 Gemini 客户端。
func NewGeminiEvaluator(ctx context.Context, apiKey, modelName string) (*GeminiEvaluator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiEvaluator{client: client, model: modelName}, nil
}

func (e *GeminiEvaluator) ForScript(sc script.Script) Coach {
	scoped := *e
	scoped.criteria = CriteriaFromScript(sc)
	return &scoped
}

func (e *GeminiEvaluator) Evaluate(ctx context.Context, fullTranscript, newSlice, category string) (string, error) {
	input := feedbackInput(e.criteria, fullTranscript, newSlice, category)
	return e.generate(ctx, feedbackSystemTmpl, feedbackUserTmpl, input)
}

func (e *GeminiEvaluator) SuggestCue(ctx context.Context, fullTranscript string) (string, error) {
	return e.generate(ctx, cueSystemTmpl, cueUserTmpl, cueInput(fullTranscript))
}

func (e *GeminiEvaluator) generate(ctx context.Context, system, user *template.Template, input map[string]any) (string, error) {
	systemText, err := render(system, input)
	if err != nil {
		return "", err
	}
	userText, err := render(user, input)
	if err != nil {
		return "", err
	}

	temperature := float32(0.3)
	resp, err := e.client.Models.GenerateContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(userText, genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemText, genai.RoleUser),
			Temperature:       &temperature,
		},
	)
	if err != nil {
		return "", fmt.Errorf("Gemini generate failed: %w", err)
	}
	return resp.Text(), nil
}

func render(tmpl *template.Template, input map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, input); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
