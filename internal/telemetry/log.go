package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	LogFieldTraceID   = "trace_id"
	LogFieldErr       = "error"
	LogFieldRequestID = "request_id"
	LogFieldVenueID   = "venue_id"
	LogFieldTicketID  = "ticket_id"
	LogFieldEventID   = "event_id"
	LogFieldStatus    = "status"
	LogFieldComponent = "component"
)

// NewLogger returns a JSON logger at the named level, defaulting to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TraceAttr tags a log line with the active trace id, or a fresh ulid when
// the context carries no span.
func TraceAttr(ctx context.Context) slog.Attr {
	span := trace.SpanFromContext(ctx)
	traceID := ""
	if span != nil && span.SpanContext().HasTraceID() {
		traceID = span.SpanContext().TraceID().String()
	} else {
		traceID = ulid.Make().String()
	}
	return slog.String(LogFieldTraceID, traceID)
}

func SpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}
