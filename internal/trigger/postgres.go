package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emperorhan/collection-scanner/internal/metrics"
	"github.com/lib/pq"
)

// PostgresListener forwards LISTEN/NOTIFY payloads on a channel into a
// Publisher. Payloads use the same JSON shape as the Redis transport.
type PostgresListener struct {
	listener *pq.Listener
	channel  string
	sink     Publisher
	logger   *slog.Logger
}

func NewPostgresListener(dsn, channel string, sink Publisher, logger *slog.Logger) *PostgresListener {
	logger = logger.With("component", "trigger_postgres", "channel", channel)
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Warn("listener connection problem", "event", int(ev), "error", err)
		case pq.ListenerEventReconnected:
			logger.Info("listener reconnected")
		}
	})
	return &PostgresListener{listener: listener, channel: channel, sink: sink, logger: logger}
}

// Run listens until ctx is done. After a reconnect the server may have
// dropped notifications, so a synthetic event is forwarded.
func (l *PostgresListener) Run(ctx context.Context) error {
	defer l.listener.Close()

	if err := l.listener.Listen(l.channel); err != nil {
		return fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.Info("listening")

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-l.listener.Notify:
			if !ok {
				return errors.New("postgres listener closed")
			}
			payload := ""
			if n != nil {
				payload = n.Extra
			} else {
				l.logger.Info("listener connection reset, forcing rescan")
			}
			ev, err := decodeEvent(payload)
			if err != nil {
				l.logger.Warn("dropping malformed trigger payload", "error", err)
				continue
			}
			if n == nil {
				ev.Reason = "reconnect"
			}
			metrics.TriggerEventsReceived.WithLabelValues("postgres").Inc()
			if err := l.sink.Publish(ctx, ev); err != nil {
				return fmt.Errorf("forward trigger: %w", err)
			}
		case <-ping.C:
			if err := l.listener.Ping(); err != nil {
				l.logger.Warn("listener ping failed", "error", err)
			}
		}
	}
}
