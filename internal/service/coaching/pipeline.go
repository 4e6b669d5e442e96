package coaching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	model "github.com/zhouzirui/canvass-coach/backend/internal/model/coaching"
	"github.com/zhouzirui/canvass-coach/backend/internal/model/transcript"
)

var evaluationCounter, _ = meter.Int64Counter("coaching.evaluations",
	metric.WithDescription("Outbound coaching evaluation calls"))

// FeedbackRequest is one claimed slice of the transcript.
type FeedbackRequest struct {
	Full     []transcript.Message
	Slice    []transcript.Message
	Category string
	// From and To are the inclusive message indexes covered by Slice.
	From, To int
}

// CategoryFeedback is the accumulated feedback of one visited category.
type CategoryFeedback struct {
	Category string         `json:"category"`
	Feedback model.Feedback `json:"feedback"`
	Summary  model.Summary  `json:"summary"`
}

// FeedbackPipeline grades each new stretch of conversation once.
//
// Begin claims the slice after the watermark and advances the watermark
// before any call is issued, so overlapping runs never cover the same messages.
type FeedbackPipeline struct {
	evaluator Evaluator

	mu         sync.Mutex
	watermark  int
	byCategory map[string]model.Feedback
	visited    []string
}

// NewFeedbackPipeline creates a pipeline with an empty watermark.
func NewFeedbackPipeline(evaluator Evaluator) *FeedbackPipeline {
	return &FeedbackPipeline{
		evaluator:  evaluator,
		watermark:  -1,
		byCategory: make(map[string]model.Feedback),
	}
}

// Watermark returns the last message index already submitted.
func (p *FeedbackPipeline) Watermark() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// Begin claims the unsubmitted slice. It reports false, leaving the watermark
// untouched, when the slice holds no voter turn.
func (p *FeedbackPipeline) Begin(messages []transcript.Message, category string) (FeedbackRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	from := p.watermark + 1
	if from >= len(messages) {
		return FeedbackRequest{}, false
	}
	slice := messages[from:]
	if !transcript.HasRole(slice, transcript.Voter) {
		return FeedbackRequest{}, false
	}

	to := len(messages) - 1
	p.watermark = to
	return FeedbackRequest{
		Full:     messages,
		Slice:    slice,
		Category: category,
		From:     from,
		To:       to,
	}, true
}

// Run calls the evaluator for a claimed slice. A response without a usable
// block yields a nil result and an *EvaluationParseError.
func (p *FeedbackPipeline) Run(ctx context.Context, req FeedbackRequest) (model.Feedback, error) {
	ctx, span := tracer.Start(ctx, "coaching feedback")
	defer span.End()
	span.SetAttributes(
		attribute.String("coaching.category", req.Category),
		attribute.Int("coaching.slice.from", req.From),
		attribute.Int("coaching.slice.to", req.To),
	)
	evaluationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("coaching.kind", "feedback")))

	if p.evaluator == nil {
		return nil, errors.New("no evaluator configured")
	}

	started := time.Now()
	response, err := p.evaluator.Evaluate(ctx, transcript.Format(req.Full), transcript.Format(req.Slice), req.Category)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("evaluate slice %d-%d: %w", req.From, req.To, err)
	}

	feedback, err := ParseFeedback(response)
	if err != nil {
		span.RecordError(err)
		logger.WarnContext(ctx, "feedback response without usable block",
			"category", req.Category, "error", err)
		return nil, err
	}

	logger.DebugContext(ctx, "feedback evaluated",
		"category", req.Category, "items", len(feedback), "elapsed", time.Since(started))
	return feedback, nil
}

// Merge folds a result into its category. Later items replace earlier ones per criterion.
func (p *FeedbackPipeline) Merge(category string, feedback model.Feedback) {
	if len(feedback) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, seen := p.byCategory[category]
	if !seen {
		p.visited = append(p.visited, category)
	}
	p.byCategory[category] = existing.Merge(feedback)
}

// Maybe runs the whole protocol for the current transcript. Parse failures
// are absorbed: the result is nil and the slice counts as handled.
func (p *FeedbackPipeline) Maybe(ctx context.Context, messages []transcript.Message, category string) (model.Feedback, error) {
	req, ok := p.Begin(messages, category)
	if !ok {
		return nil, nil
	}

	feedback, err := p.Run(ctx, req)
	if err != nil {
		var parseErr *EvaluationParseError
		if errors.As(err, &parseErr) {
			return nil, nil
		}
		return nil, err
	}
	p.Merge(category, feedback)
	return feedback, nil
}

// Current returns the accumulated feedback of one category.
func (p *FeedbackPipeline) Current(category string) model.Feedback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byCategory[category].Clone()
}

// Summary lists every visited category in visit order.
func (p *FeedbackPipeline) Summary() []CategoryFeedback {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]CategoryFeedback, 0, len(p.visited))
	for _, category := range p.visited {
		feedback := p.byCategory[category].Clone()
		out = append(out, CategoryFeedback{
			Category: category,
			Feedback: feedback,
			Summary:  feedback.Summarize(),
		})
	}
	return out
}

// CueRequest is one claimed slice for cue generation.
type CueRequest struct {
	Full     []transcript.Message
	From, To int
}

// CuePipeline asks for at most one follow-up question per new stretch of
// conversation and keeps every suggestion in order.
type CuePipeline struct {
	suggester CueSuggester

	mu        sync.Mutex
	watermark int
	cues      []model.Cue
}

func NewCuePipeline(suggester CueSuggester) *CuePipeline {
	return &CuePipeline{suggester: suggester, watermark: -1}
}

func (p *CuePipeline) Watermark() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watermark
}

// Begin claims any message after the watermark, from either speaker.
func (p *CuePipeline) Begin(messages []transcript.Message) (CueRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	from := p.watermark + 1
	if from >= len(messages) {
		return CueRequest{}, false
	}
	to := len(messages) - 1
	p.watermark = to
	return CueRequest{Full: messages, From: from, To: to}, true
}

// Run asks the suggester for a cue. A nil cue with a nil error means nothing to suggest.
func (p *CuePipeline) Run(ctx context.Context, req CueRequest) (*model.Cue, error) {
	ctx, span := tracer.Start(ctx, "coaching cue")
	defer span.End()
	span.SetAttributes(attribute.Int("coaching.slice.from", req.From), attribute.Int("coaching.slice.to", req.To))
	evaluationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("coaching.kind", "cue")))

	if p.suggester == nil {
		return nil, errors.New("no cue suggester configured")
	}

	response, err := p.suggester.SuggestCue(ctx, transcript.Format(req.Full))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("suggest cue: %w", err)
	}

	cue, err := ParseCue(response)
	if err != nil {
		span.RecordError(err)
		logger.WarnContext(ctx, "cue response without usable block", "error", err)
		return nil, err
	}
	return cue, nil
}

// Append adds a cue to the list. Near-duplicates are kept.
func (p *CuePipeline) Append(cue *model.Cue) {
	if cue == nil {
		return
	}
	p.mu.Lock()
	p.cues = append(p.cues, *cue)
	p.mu.Unlock()
}

// Maybe runs the whole protocol and appends the result.
func (p *CuePipeline) Maybe(ctx context.Context, messages []transcript.Message) (*model.Cue, error) {
	req, ok := p.Begin(messages)
	if !ok {
		return nil, nil
	}

	cue, err := p.Run(ctx, req)
	if err != nil {
		var parseErr *EvaluationParseError
		if errors.As(err, &parseErr) {
			log.Printf("[coaching] cue skipped: %v", err)
			return nil, nil
		}
		return nil, err
	}
	p.Append(cue)
	return cue, nil
}

// Cues returns a copy of every suggestion so far.
func (p *CuePipeline) Cues() []model.Cue {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Cue, len(p.cues))
	copy(out, p.cues)
	return out
}
