// Package search forwards finalized messages and users to the search
// index, best-effort and off the delivery critical path.
package search

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vanchien08/thunderchat/internal/metrics"
	"github.com/vanchien08/thunderchat/internal/models"
)

// Sink is satisfied by *kafka.Writer.
type Sink interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type document struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

// Relay is an eventual-consistency sink: enqueue never blocks, send
// failures are retried with bounded backoff and dropped on exhaustion.
// The search index may lag live conversation state.
type Relay struct {
	sink       Sink
	queue      chan kafka.Message
	done       chan struct{}
	maxElapsed time.Duration
	log        *zap.SugaredLogger
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

func NewRelay(sink Sink, buffer int, maxElapsed time.Duration, log *zap.SugaredLogger) *Relay {
	if buffer <= 0 {
		buffer = 1024
	}
	if maxElapsed <= 0 {
		maxElapsed = time.Minute
	}
	r := &Relay{
		sink:       sink,
		queue:      make(chan kafka.Message, buffer),
		done:       make(chan struct{}),
		maxElapsed: maxElapsed,
		log:        log,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// IndexMessage keys the record by conversation scope so one
// conversation's documents stay ordered within a partition.
func (r *Relay) IndexMessage(m *models.Message) {
	r.enqueue("message", m.ScopeID(), m)
}

func (r *Relay) IndexUser(u *models.User) {
	r.enqueue("user", u.ID, u)
}

func (r *Relay) enqueue(kind, key string, data interface{}) {
	b, err := json.Marshal(document{Kind: kind, Data: data})
	if err != nil {
		r.log.Errorw("marshal index document", "kind", kind, "err", err)
		return
	}
	select {
	case <-r.done:
		metrics.IndexDropped.Inc()
		r.log.Warnw("relay closed, dropping", "kind", kind, "key", key)
		return
	default:
	}
	msg := kafka.Message{Key: []byte(kind + ":" + key), Value: b, Time: time.Now()}
	select {
	case r.queue <- msg:
	default:
		metrics.IndexDropped.Inc()
		r.log.Warnw("index queue full, dropping", "kind", kind, "key", key)
	}
}

// Close stops accepting work and drains what is already queued. The
// queue channel itself stays open, so late enqueues are dropped rather
// than panicking during the shutdown window.
func (r *Relay) Close() {
	r.closeOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

func (r *Relay) run() {
	defer r.wg.Done()
	for {
		select {
		case msg := <-r.queue:
			r.forward(msg)
		case <-r.done:
			for {
				select {
				case msg := <-r.queue:
					r.forward(msg)
				default:
					return
				}
			}
		}
	}
}

func (r *Relay) forward(msg kafka.Message) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxElapsedTime = r.maxElapsed
	attempt := 0
	err := backoff.Retry(func() error {
		if attempt > 0 {
			metrics.IndexRetries.Inc()
		}
		attempt++
		return r.sink.WriteMessages(context.Background(), msg)
	}, b)
	if err != nil {
		metrics.IndexDropped.Inc()
		r.log.Errorw("index forward abandoned", "key", string(msg.Key), "err", err)
	}
}
