// Package nats carries queued scan jobs between the api and the
// worker.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/cardscan/internal/infrastructure/resilience"
)

const workerGroup = "scan-workers"

type Queue struct {
	conn       *nats.Conn
	subject    string
	executor   *resilience.Executor
	logger     *slog.Logger
	onQueueLag func(time.Duration)
	clock      func() time.Time
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger

	// OnQueueLag receives the enqueue-to-delivery delay of each scan
	// job, for consumers exporting a lag metric.
	OnQueueLag func(time.Duration)
}

// scanEvent is the wire payload. Older producers published the bare
// scan id; decodeScanEvent still accepts that.
type scanEvent struct {
	ScanID     string    `json:"scan_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func encodeScanEvent(scanID string, enqueuedAt time.Time) []byte {
	data, err := json.Marshal(scanEvent{ScanID: scanID, EnqueuedAt: enqueuedAt.UTC()})
	if err != nil {
		return []byte(scanID)
	}
	return data
}

func decodeScanEvent(data []byte) scanEvent {
	var event scanEvent
	if err := json.Unmarshal(data, &event); err != nil || event.ScanID == "" {
		return scanEvent{ScanID: string(data)}
	}
	return event
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("cardscan"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:       conn,
		subject:    subject,
		executor:   options.ResilienceExecutor,
		logger:     logger,
		onQueueLag: options.OnQueueLag,
		clock:      time.Now,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishScanQueued(ctx context.Context, scanID string) error {
	payload := encodeScanEvent(scanID, q.clock())
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeScanQueued blocks until the context ends, handing scan ids
// to the handler. Worker instances share one queue group so a scan is
// processed once.
func (q *Queue) SubscribeScanQueued(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		event := decodeScanEvent(msg.Data)
		if q.onQueueLag != nil && !event.EnqueuedAt.IsZero() {
			q.onQueueLag(q.clock().Sub(event.EnqueuedAt))
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event.ScanID); err != nil {
			q.logger.Error("scan handler failed",
				"scan_id", event.ScanID,
				"retryable", resilience.ClassifyDomain(err).Retryable,
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
