package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

//go:generate mockgen -source=publisher.go -destination=mocks/mock_publisher.go -package=mocks

const (
	DefaultStreamName    = "VALET_EVENTS"
	DefaultSubjectPrefix = "valet.events"
)

// JetStream is the publishing half of jetstream.JetStream.
type JetStream interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher forwards status events to JetStream, one subject per venue. The
// event id doubles as the message id so redelivery from the tailer is
// deduplicated by the server.
type Publisher struct {
	js     JetStream
	prefix string
	logger *slog.Logger
}

func NewPublisher(js JetStream, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{js: js, prefix: prefix, logger: logger}
}

func (p *Publisher) Subject(venueID int64) string {
	return fmt.Sprintf("%s.%d", p.prefix, venueID)
}

func (p *Publisher) Publish(ctx context.Context, ev models.StatusEvent) error {
	ctx, span := telemetry.Tracer.Start(ctx, "Publisher.Publish")
	defer span.End()

	data, err := json.Marshal(ev)
	if err != nil {
		telemetry.SpanError(span, err)
		return err
	}
	msg := nats.NewMsg(p.Subject(ev.VenueID))
	msg.Data = data

	if _, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(strconv.FormatInt(ev.ID, 10))); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish status event",
			telemetry.TraceAttr(ctx),
			slog.Int64(telemetry.LogFieldEventID, ev.ID),
			slog.Any(telemetry.LogFieldErr, err))
		telemetry.SpanError(span, err)
		return err
	}
	return nil
}

// EnsureStream creates or updates the stream that captures every venue subject.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name, prefix string) (jetstream.Stream, error) {
	if name == "" {
		name = DefaultStreamName
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	cfg := jetstream.StreamConfig{
		Name:       name,
		Retention:  jetstream.LimitsPolicy,
		Subjects:   []string{prefix + ".>"},
		MaxAge:     24 * time.Hour,
		Duplicates: 10 * time.Minute,
		MaxBytes:   64 * 1024 * 1024,
	}
	st, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", name, err)
	}
	return st, nil
}
