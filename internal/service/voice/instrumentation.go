package voice

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/zhouzirui/canvass-coach/backend/internal/service/voice"

var tracer = otel.Tracer(scopeName)

// connectAudio acquires the microphone on first use and dials inside a client span.
// A permission failure leaves the instance not-started.
func connectAudio(ctx context.Context, l *lifecycle, audio AudioSource, dial dialFunc) error {
	ctx, span := tracer.Start(ctx, string(l.kind)+" connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("voice.backend", string(l.kind))))
	defer span.End()

	if l.Status().Status == StatusNotStarted && audio != nil {
		if err := audio.Acquire(ctx); err != nil {
			span.RecordError(err)
			return err
		}
		span.AddEvent("microphone acquired")
	}

	err := l.connect(ctx, dial)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
