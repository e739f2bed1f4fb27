package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/chronoguard/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
)

// publisher is the slice of nats.JetStreamContext the dispatcher uses.
type publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// JetStreamDispatcher publishes reminder requests to a NATS JetStream subject.
// Publishes go through a circuit breaker that opens after five consecutive failures.
type JetStreamDispatcher struct {
	js      publisher
	subject string
	breaker *gobreaker.CircuitBreaker
	closeFn func() error
}

// ConnectJetStream connects to NATS and makes sure the reminder stream exists.
func ConnectJetStream(cfg config.NATSConfig) (*JetStreamDispatcher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("chronoguard"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   []string{cfg.Subject},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Discard:    nats.DiscardOld,
		Duplicates: 10 * time.Minute,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		slog.Warn("could not create reminder stream", "stream", cfg.Stream, "error", err)
	}

	slog.Info("connected to NATS", "url", cfg.URL, "subject", cfg.Subject)
	return newJetStreamDispatcher(js, cfg.Subject, conn.Drain), nil
}

func newJetStreamDispatcher(js publisher, subject string, closeFn func() error) *JetStreamDispatcher {
	return &JetStreamDispatcher{
		js:      js,
		subject: subject,
		closeFn: closeFn,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "reminder-dispatch",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (d *JetStreamDispatcher) Name() string { return "nats" }

// Dispatch publishes r. The appointment id is the JetStream message id, so a repeated
// request for the same appointment inside the duplicate window is dropped by the server.
func (d *JetStreamDispatcher) Dispatch(ctx context.Context, r Reminder) error {
	r.EventType = EventReminderRequested
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling reminder: %w", err)
	}

	_, err = d.breaker.Execute(func() (interface{}, error) {
		return d.js.Publish(d.subject, data, nats.Context(ctx), nats.MsgId(r.AppointmentID.String()))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDispatcherUnavailable, err)
	}
	return nil
}

func (d *JetStreamDispatcher) Close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

var _ Dispatcher = (*JetStreamDispatcher)(nil)
