package config

import (
	"context"
	"fmt"
	"log"

	"github.com/zhouzirui/canvass-coach/backend/internal/service/coaching"
)

// NewCoachProvider 根据 COACH_PROVIDER 创建教练；auto 模式依次尝试 Ark、Gemini，最后退回启发式规则。
// 返回 nil 表示不生成反馈。
func (c *Config) NewCoachProvider(ctx context.Context) (coaching.Provider, error) {
	switch c.Coach.Provider {
	case CoachNone:
		return nil, nil
	case CoachHeuristic:
		return coaching.NewHeuristicCoach(), nil
	case CoachArk:
		return c.newArkCoach(ctx)
	case CoachGemini:
		return c.newGeminiCoach(ctx)
	}

	if c.AI.Enabled() {
		provider, err := c.newArkCoach(ctx)
		if err == nil {
			return provider, nil
		}
		log.Printf("[config] ark coach unavailable: %v", err)
	}
	if c.Gemini.Enabled() {
		provider, err := c.newGeminiCoach(ctx)
		if err == nil {
			return provider, nil
		}
		log.Printf("[config] gemini coach unavailable: %v", err)
	}
	log.Println("[config] 未配置评估模型，使用启发式教练")
	return coaching.NewHeuristicCoach(), nil
}

func (c *Config) newArkCoach(ctx context.Context) (coaching.Provider, error) {
	chatModel, err := c.AI.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	evaluator, err := coaching.NewChainEvaluator(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("build ark evaluator: %w", err)
	}
	return evaluator, nil
}

func (c *Config) newGeminiCoach(ctx context.Context) (coaching.Provider, error) {
	if !c.Gemini.Enabled() {
		return nil, fmt.Errorf("GEMINI_API_KEY 未配置")
	}
	evaluator, err := coaching.NewGeminiEvaluator(ctx, c.Gemini.APIKey, c.Gemini.Model)
	if err != nil {
		return nil, fmt.Errorf("build gemini evaluator: %w", err)
	}
	return evaluator, nil
}
