// Package events carries orchestrator run events over NATS.
//
// Each run event is published to
//
//	<prefix>.<session_id>.<event_type>
//
// so a subscriber to <prefix>.<session_id>.* sees one session's run in
// order. With no broker URL configured an in-process server is started.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/config"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/secrets"
)

// DefaultPrefix is the first subject token.
const DefaultPrefix = "runs"

// subscriptionBuffer bounds undelivered messages per subscriber.
const subscriptionBuffer = 256

// ErrInvalidSessionID is returned for ids that cannot form a subject token.
var ErrInvalidSessionID = errors.New("invalid session id for subject")

// Bus publishes and subscribes to run events.
type Bus struct {
	nc       *nats.Conn
	prefix   string
	logger   *zap.Logger
	scrubber secrets.Scrubber
	embedded *natsserver.Server
}

// Option configures a Bus.
type Option func(*Bus)

// WithScrubber redacts secrets from task output and reflection before
// they are published.
func WithScrubber(s secrets.Scrubber) Option {
	return func(b *Bus) {
		if s != nil {
			b.scrubber = s
		}
	}
}

// NewBus wraps an existing connection. An empty prefix uses DefaultPrefix.
func NewBus(nc *nats.Conn, prefix string, logger *zap.Logger, opts ...Option) *Bus {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{nc: nc, prefix: prefix, logger: logger, scrubber: secrets.NoopScrubber{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect dials cfg.URL, or starts an embedded server when it is empty.
// Close stops the embedded server.
func Connect(cfg config.EventsConfig, logger *zap.Logger, opts ...Option) (*Bus, error) {
	url := cfg.URL
	var srv *natsserver.Server
	if url == "" {
		s, err := StartEmbedded(5 * time.Second)
		if err != nil {
			return nil, err
		}
		srv = s
		url = s.ClientURL()
	}

	nc, err := nats.Connect(url, nats.Name("todorun"))
	if err != nil {
		if srv != nil {
			srv.Shutdown()
		}
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}

	b := NewBus(nc, cfg.SubjectPrefix, logger, opts...)
	b.embedded = srv
	b.logger.Info("event bus connected", zap.String("url", url), zap.Bool("embedded", srv != nil))
	return b, nil
}

// StartEmbedded runs an in-process NATS server on a random loopback port.
func StartEmbedded(ready time.Duration) (*natsserver.Server, error) {
	s, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats server: %w", err)
	}
	go s.Start()
	if !s.ReadyForConnections(ready) {
		s.Shutdown()
		return nil, errors.New("embedded nats server not ready")
	}
	return s, nil
}

// Subject returns the subject for one event of a session.
func (b *Bus) Subject(sessionID string, t orchestrator.EventType) string {
	return b.prefix + "." + sessionID + "." + string(t)
}

func validToken(s string) bool {
	return s != "" && !strings.ContainsAny(s, ".*> \t\r\n")
}

// Publish sends e for sessionID.
func (b *Bus) Publish(sessionID string, e orchestrator.Event) error {
	if !validToken(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	data, err := Encode(b.redact(e))
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	if err := b.nc.Publish(b.Subject(sessionID, e.Type), data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	return nil
}

func (b *Bus) redact(e orchestrator.Event) orchestrator.Event {
	if e.Task == nil || e.Task.Result == nil || !b.scrubber.IsEnabled() {
		return e
	}
	t := *e.Task
	r := *t.Result
	r.Output = b.scrubber.Scrub(r.Output).Scrubbed
	r.Reflection = b.scrubber.Scrub(r.Reflection).Scrubbed
	t.Result = &r
	e.Task = &t
	return e
}

// Observer publishes a session's run events. Publish failures are logged;
// they never stop the run.
func (b *Bus) Observer(sessionID string) orchestrator.Observer {
	return orchestrator.ObserverFunc(func(_ context.Context, e orchestrator.Event) {
		if err := b.Publish(sessionID, e); err != nil {
			b.logger.Warn("event publish failed",
				zap.String("session.id", sessionID),
				zap.String("event", string(e.Type)),
				zap.Error(err),
			)
		}
	})
}

// Message is one received event.
type Message struct {
	Type orchestrator.EventType
	Data []byte
}

// Subscription delivers a session's events in publish order.
type Subscription struct {
	C <-chan Message

	sub  *nats.Subscription
	done chan struct{}
	once sync.Once
}

// Subscribe starts receiving events for sessionID. The subscription is
// registered with the server before Subscribe returns, so events
// published afterwards are not missed.
func (b *Bus) Subscribe(sessionID string) (*Subscription, error) {
	if !validToken(sessionID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}

	raw := make(chan *nats.Msg, subscriptionBuffer)
	sub, err := b.nc.ChanSubscribe(b.prefix+"."+sessionID+".*", raw)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}

	out := make(chan Message, subscriptionBuffer)
	s := &Subscription{C: out, sub: sub, done: make(chan struct{})}
	go func() {
		defer close(out)
		for {
			select {
			case <-s.done:
				return
			case msg := <-raw:
				parts := strings.Split(msg.Subject, ".")
				select {
				case out <- Message{Type: orchestrator.EventType(parts[len(parts)-1]), Data: msg.Data}:
				case <-s.done:
					return
				}
			}
		}
	}()
	return s, nil
}

// Close stops delivery. C is closed shortly afterwards.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.sub.Unsubscribe()
	})
}

// Flush waits until the server has processed everything published so far.
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Healthy reports whether the connection is usable.
func (b *Bus) Healthy() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close flushes pending events, closes the connection and stops an
// embedded server.
func (b *Bus) Close() {
	if b.nc != nil {
		if err := b.nc.FlushTimeout(2 * time.Second); err != nil {
			b.logger.Debug("event flush on close failed", zap.Error(err))
		}
		b.nc.Close()
	}
	if b.embedded != nil {
		b.embedded.Shutdown()
	}
}
