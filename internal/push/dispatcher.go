// Package push delivers notification payloads to the out-of-band
// endpoints of users who cannot be reached over a live connection.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vanchien08/thunderchat/internal/metrics"
	"github.com/vanchien08/thunderchat/internal/models"
)

type Payload struct {
	Kind         string `json:"kind"`
	MessageSeq   int64  `json:"message_id,omitempty"`
	SenderID     string `json:"sender_id,omitempty"`
	DirectChatID string `json:"direct_chat_id,omitempty"`
	GroupChatID  string `json:"group_chat_id,omitempty"`
	Title        string `json:"title,omitempty"`
	Body         string `json:"body,omitempty"`
}

// Result separates endpoints by outcome so callers can prune dead ones.
type Result struct {
	Success []models.PushEndpoint `json:"success"`
	Failure []models.PushEndpoint `json:"failure"`
}

type EndpointStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.PushEndpoint, error)
}

type Dispatcher struct {
	store    EndpointStore
	client   *http.Client
	timeout  time.Duration
	log      *zap.SugaredLogger
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewDispatcher(store EndpointStore, timeout time.Duration, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// SendToUser attempts delivery to every registered endpoint of the user
// independently and concurrently. One failing endpoint never aborts the
// others; the aggregate result reports both sets.
func (d *Dispatcher) SendToUser(ctx context.Context, userID string, payload Payload) (*Result, error) {
	endpoints, err := d.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	res := &Result{Success: []models.PushEndpoint{}, Failure: []models.PushEndpoint{}}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, ep := range endpoints {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := d.deliver(ctx, ep, body)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				d.log.Debugw("push delivery failed", "endpoint", ep.ID, "err", err)
				metrics.PushDeliveries.WithLabelValues("failure").Inc()
				res.Failure = append(res.Failure, ep)
				return
			}
			metrics.PushDeliveries.WithLabelValues("success").Inc()
			res.Success = append(res.Success, ep)
		}()
	}
	wg.Wait()
	return res, nil
}

// Notify is the fire-and-forget form used by the delivery router.
func (d *Dispatcher) Notify(ctx context.Context, userID string, payload Payload) {
	res, err := d.SendToUser(ctx, userID, payload)
	if err != nil {
		d.log.Warnw("push dispatch", "user_id", userID, "err", err)
		return
	}
	if len(res.Failure) > 0 {
		d.log.Infow("push partially delivered", "user_id", userID,
			"ok", len(res.Success), "failed", len(res.Failure))
	}
}

// deliver posts the payload to one endpoint under its own deadline, so
// a slow endpoint cannot stall the aggregate result. A breaker per
// endpoint host sheds load from hosts that keep failing.
func (d *Dispatcher) deliver(ctx context.Context, ep models.PushEndpoint, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := d.breaker(ep.URL).Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if ep.Auth != "" {
			req.Header.Set("Authorization", ep.Auth)
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("endpoint returned %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

func (d *Dispatcher) breaker(rawURL string) *gobreaker.CircuitBreaker {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.breakers[host]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    host,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
		d.breakers[host] = cb
	}
	return cb
}
