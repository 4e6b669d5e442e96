package coaching

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/canvass-coach/backend/internal/model/script"
)

// ChainEvaluator 通过 eino 链调用大模型完成反馈与提示生成。
type ChainEvaluator struct {
	feedback compose.Runnable[map[string]any, *schema.Message]
	cue      compose.Runnable[map[string]any, *schema.Message]
	criteria map[string][]Criterion
}

// NewChainEvaluator 编译反馈链与提示链，chatModel 可与其他服务共用。
func NewChainEvaluator(ctx context.Context, chatModel model.ChatModel) (*ChainEvaluator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	feedback, err := compileChain(ctx, chatModel, feedbackSystemPrompt, feedbackUserPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to compile feedback chain: %w", err)
	}

	cue, err := compileChain(ctx, chatModel, cueSystemPrompt, cueUserPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to compile cue chain: %w", err)
	}

	return &ChainEvaluator{feedback: feedback, cue: cue}, nil
}

func compileChain(ctx context.Context, chatModel model.ChatModel, system, user string) (compose.Runnable[map[string]any, *schema.Message], error) {
	promptTemplate := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	return chain.Compile(ctx)
}

// ForScript 返回携带该剧本评估标准的副本，已编译的链共享。
func (e *ChainEvaluator) ForScript(sc script.Script) Coach {
	scoped := *e
	scoped.criteria = CriteriaFromScript(sc)
	return &scoped
}

func (e *ChainEvaluator) Evaluate(ctx context.Context, fullTranscript, newSlice, category string) (string, error) {
	msg, err := e.feedback.Invoke(ctx, feedbackInput(e.criteria, fullTranscript, newSlice, category))
	if err != nil {
		return "", fmt.Errorf("failed to run feedback chain: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	log.Printf("[coaching] feedback chain category=%s length=%d", category, len(msg.Content))
	return msg.Content, nil
}

func (e *ChainEvaluator) SuggestCue(ctx context.Context, fullTranscript string) (string, error) {
	msg, err := e.cue.Invoke(ctx, cueInput(fullTranscript))
	if err != nil {
		return "", fmt.Errorf("failed to run cue chain: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return msg.Content, nil
}
