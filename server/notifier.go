package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ValentinKolb/sKV/lib/util"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// --------------------------------------------------------------------------
// Change notification events
// --------------------------------------------------------------------------

// Event types published on the notification subject.
const (
	EventPutSuccess    = "put_success"
	EventGetSuccess    = "get_success"
	EventGetMiss       = "get_miss"
	EventDeleteSuccess = "delete_success"
)

// Event is one operation outcome published to subscribers. LatencyMs is
// only set for events that carry a measured latency.
type Event struct {
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
	Key       string  `json:"key,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

// --------------------------------------------------------------------------
// Notifier
// --------------------------------------------------------------------------

// Notifier publishes operation events to a NATS subject. Publishing is
// strictly best-effort: request handlers push events onto a lock-free
// queue and never wait for the broker, a single publisher goroutine
// drains the queue. A nil Notifier is valid and drops all events, which
// is how the server runs when no NATS url is configured.
type Notifier struct {
	conn    *nats.Conn
	subject string
	queue   *util.MPSC[Event]
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewNotifier connects to the broker and starts the publisher goroutine.
// The connection retries in the background, events published while the
// broker is unreachable are buffered by the NATS client and dropped once
// its reconnect buffer overflows.
func NewNotifier(url, subject string, logger *zap.Logger) (*Notifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(url,
		nats.Name("skv-server"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}

	n := &Notifier{
		conn:    conn,
		subject: subject,
		queue:   util.NewMPSC[Event](),
		logger:  logger,
	}

	n.wg.Add(1)
	go n.publish()

	logger.Info("change notifier started",
		zap.String("url", url),
		zap.String("subject", subject),
	)
	return n, nil
}

// Notify queues one event for publishing. It never blocks.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (n *Notifier) Notify(eventType, key string, latency time.Duration) {
	if n == nil {
		return
	}
	ev := Event{
		Type:      eventType,
		Timestamp: timestamp(),
		Key:       key,
	}
	if latency > 0 {
		ev.LatencyMs = float64(latency.Microseconds()) / 1000.0
	}
	n.queue.Push(&ev)
}

// publish drains the queue and forwards each event to the broker.
func (n *Notifier) publish() {
	defer n.wg.Done()

	for ev := range n.queue.Recv() {
		data, err := json.Marshal(ev)
		if err != nil {
			n.logger.Warn("could not encode event", zap.Error(err))
			continue
		}
		if err := n.conn.Publish(n.subject, data); err != nil {
			n.logger.Debug("event dropped",
				zap.String("type", ev.Type),
				zap.Error(err),
			)
		}
	}
}

// Close stops accepting events, lets the publisher drain the queue and
// flushes the connection.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.queue.Close()
	n.wg.Wait()
	if err := n.conn.Drain(); err != nil {
		n.logger.Warn("draining nats connection failed", zap.Error(err))
		n.conn.Close()
	}
}
