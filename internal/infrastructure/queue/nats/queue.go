// Package nats delivers object-created events to the orchestration workers.
// Delivery is at-least-once; duplicates are harmless because Start is
// idempotent on the document reference.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docflow/internal/core/domain"
)

// createdEvent is the wire form of one storage-level creation event.
type createdEvent struct {
	Container string    `json:"container"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Queue struct {
	conn        *nats.Conn
	subject     string
	queueGroup  string
	lagObserver func(time.Duration)
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	QueueGroup           string

	// LagObserver receives the delay between event creation and handling,
	// for the trigger-lag metric.
	LagObserver func(time.Duration)
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
	queueGroup := options.QueueGroup
	if queueGroup == "" {
		queueGroup = "docflow-workers"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("docflow"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		subject:     subject,
		queueGroup:  queueGroup,
		lagObserver: options.LagObserver,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentCreated(ctx context.Context, ref domain.DocumentRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(createdEvent{
		Container: ref.Container,
		Key:       ref.Key,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal created event: %w", err)
	}
	if err := q.conn.Publish(q.subject, data); err != nil {
		return domain.WrapError(domain.ErrTransient, "nats publish", err)
	}
	return nil
}

func (q *Queue) SubscribeDocumentCreated(ctx context.Context, handler func(context.Context, domain.DocumentRef) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		var event createdEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("drop malformed created event: %v", err)
			return
		}
		ref := domain.DocumentRef{Container: event.Container, Key: event.Key}
		if err := ref.Validate(); err != nil {
			log.Printf("drop created event with invalid ref: %v", err)
			return
		}
		if q.lagObserver != nil && !event.CreatedAt.IsZero() {
			q.lagObserver(time.Since(event.CreatedAt))
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, ref); err != nil {
			log.Printf("worker handler error for %s: %v", ref, err)
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
