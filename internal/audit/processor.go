package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"github.com/taskboard/task-events-service/internal/domain/event"
)

// Sink is the durable audit store collaborator. InsertAuditRecord must
// be idempotent on EventID: a redelivered event returns applied=false
// with a nil error instead of a second row.
type Sink interface {
	InsertAuditRecord(ctx context.Context, rec *event.AuditRecord) (applied bool, err error)
}

// DeadLetterSink records envelopes that can never be processed, so the
// partition is not stalled retrying them forever.
type DeadLetterSink interface {
	Record(ctx context.Context, dl *DeadLetter) error
}

// DeadLetter captures a structurally invalid delivery with enough
// transport context to investigate it later.
type DeadLetter struct {
	EventID    string
	Topic      string
	Partition  int32
	Offset     int64
	Reason     string
	Payload    []byte
	ReceivedAt time.Time
}

// Position is the transport-level location of a delivery. Used only for
// logging and dead-letter context, never for business logic.
type Position struct {
	Topic     string
	Partition int32
	Offset    int64
	MessageID string
}

func (p Position) LogAttrs() []any {
	return []any{
		"topic", p.Topic,
		"partition", p.Partition,
		"offset", p.Offset,
		"msg_id", p.MessageID,
	}
}

// Processor turns delivered envelopes into audit rows under
// at-least-once transport. Effectively-once semantics come from two
// layers: an LRU front cache of recently applied event IDs, and the
// sink's uniqueness constraint, which is the authoritative one.
type Processor struct {
	sink        Sink
	deadLetters DeadLetterSink
	logger      *slog.Logger

	// seen only short-circuits redeliveries that land on the same
	// instance; a rebalanced partition bypasses it and hits the sink
	// constraint instead.
	seen *lru.Cache[string, struct{}]

	// breaker sheds sink load during an outage so deliveries nack fast
	// and the retry policy paces redelivery.
	breaker *gobreaker.CircuitBreaker
}

func NewProcessor(sink Sink, deadLetters DeadLetterSink, logger *slog.Logger, dedupCacheSize int) (*Processor, error) {
	seen, err := lru.New[string, struct{}](dedupCacheSize)
	if err != nil {
		return nil, fmt.Errorf("audit: dedup cache: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "audit-sink",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("sink breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Processor{
		sink:        sink,
		deadLetters: deadLetters,
		logger:      logger,
		seen:        seen,
		breaker:     breaker,
	}, nil
}

// ProcessEvent derives and persists the audit record for one delivered
// envelope.
//
// Error contract: a nil return means the delivery may be acknowledged,
// because the record committed, the event was a duplicate, or the
// envelope was invalid and has been dead-lettered. A non-nil return
// means the position must NOT be acknowledged; the delivery will be
// retried with backoff and eventually poisoned.
func (p *Processor) ProcessEvent(ctx context.Context, env *event.Envelope, pos Position) error {
	if err := env.Validate(); err != nil {
		// Permanent: retrying a structurally invalid event forever
		// would stall the partition. Record it and acknowledge.
		return p.deadLetter(ctx, env, pos, err)
	}

	if !event.HasOperationMapping(env.EventType) {
		// Unknown-but-valid types fall back to UPDATE per contract.
		// Logged so genuinely new operation kinds stay observable.
		p.logger.WarnContext(ctx, "event type has no explicit operation mapping, defaulting to UPDATE",
			append([]any{"event_type", env.EventType, "event_id", env.EventID}, pos.LogAttrs()...)...)
	}

	if p.seen.Contains(env.EventID) {
		p.logger.DebugContext(ctx, "duplicate delivery absorbed by cache",
			append([]any{"event_id", env.EventID}, pos.LogAttrs()...)...)
		return nil
	}

	rec := event.DeriveAuditRecord(env)

	res, err := p.breaker.Execute(func() (any, error) {
		applied, insertErr := p.sink.InsertAuditRecord(ctx, rec)
		return applied, insertErr
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.logger.WarnContext(ctx, "sink breaker open, delivery will be retried",
				append([]any{"event_id", env.EventID}, pos.LogAttrs()...)...)
			return err
		}
		// Transient infrastructure failure: nack, keep the position.
		p.logger.ErrorContext(ctx, "audit write failed",
			append([]any{"event_id", env.EventID, "error", err}, pos.LogAttrs()...)...)
		return fmt.Errorf("audit: insert %s: %w", env.EventID, err)
	}

	p.seen.Add(env.EventID, struct{}{})

	if applied, _ := res.(bool); !applied {
		p.logger.DebugContext(ctx, "duplicate delivery absorbed by sink constraint",
			append([]any{"event_id", env.EventID}, pos.LogAttrs()...)...)
		return nil
	}

	p.logger.InfoContext(ctx, "audit record committed",
		append([]any{"event_id", env.EventID, "operation", string(event.OperationFor(env.EventType))}, pos.LogAttrs()...)...)
	return nil
}

func (p *Processor) deadLetter(ctx context.Context, env *event.Envelope, pos Position, cause error) error {
	dl := &DeadLetter{
		EventID:    env.EventID,
		Topic:      pos.Topic,
		Partition:  pos.Partition,
		Offset:     pos.Offset,
		Reason:     cause.Error(),
		ReceivedAt: time.Now().UTC(),
	}
	if err := p.deadLetters.Record(ctx, dl); err != nil {
		// Could not even dead-letter: keep the position unacknowledged
		// and let the retry policy bring the delivery back.
		p.logger.ErrorContext(ctx, "dead-letter write failed",
			append([]any{"event_id", env.EventID, "error", err}, pos.LogAttrs()...)...)
		return fmt.Errorf("audit: dead-letter %s: %w", env.EventID, err)
	}

	p.logger.WarnContext(ctx, "invalid envelope dead-lettered",
		append([]any{"event_id", env.EventID, "reason", cause.Error()}, pos.LogAttrs()...)...)
	return nil
}
