// Package dedup filters retransmitted client events. The realtime
// transport has at-least-once semantics across reconnects, so each
// logical event carries a one-time token admitted at most once per
// validity window.
package dedup

import (
	"container/heap"
	"sync"
	"time"
)

const DefaultTTL = time.Hour

type entry struct {
	userID   string
	token    string
	deadline time.Time
}

type expiryHeap []entry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Guard is safe for concurrent use. Expiry is driven by a single
// deadline-ordered heap and one sweeper goroutine rather than a timer
// per token.
type Guard struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]map[string]time.Time
	heap   expiryHeap
	wake   chan struct{}
	done   chan struct{}
	now    func() time.Time
}

func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g := &Guard{
		ttl:    ttl,
		tokens: make(map[string]map[string]time.Time),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		now:    time.Now,
	}
	go g.sweep()
	return g
}

// Admit returns true exactly once per (userID, token) pair within the
// validity window. After the token expires the pair admits again.
func (g *Guard) Admit(userID, token string) bool {
	now := g.now()
	g.mu.Lock()
	defer g.mu.Unlock()

	byToken, ok := g.tokens[userID]
	if !ok {
		byToken = make(map[string]time.Time)
		g.tokens[userID] = byToken
	}
	if deadline, seen := byToken[token]; seen && deadline.After(now) {
		return false
	}
	deadline := now.Add(g.ttl)
	byToken[token] = deadline
	heap.Push(&g.heap, entry{userID: userID, token: token, deadline: deadline})
	select {
	case g.wake <- struct{}{}:
	default:
	}
	return true
}

// Clear evicts every outstanding token for a user. Called on disconnect
// to bound memory; stale heap entries are skipped by the sweeper.
func (g *Guard) Clear(userID string) {
	g.mu.Lock()
	delete(g.tokens, userID)
	g.mu.Unlock()
}

// Size reports the number of live tokens, for metrics.
func (g *Guard) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, byToken := range g.tokens {
		n += len(byToken)
	}
	return n
}

func (g *Guard) Close() {
	close(g.done)
}

func (g *Guard) sweep() {
	timer := time.NewTimer(g.ttl)
	defer timer.Stop()
	for {
		g.mu.Lock()
		wait := g.ttl
		now := g.now()
		for g.heap.Len() > 0 {
			next := g.heap[0]
			if next.deadline.After(now) {
				wait = next.deadline.Sub(now)
				break
			}
			heap.Pop(&g.heap)
			if byToken, ok := g.tokens[next.userID]; ok {
				// Skip if the token was re-admitted with a later deadline.
				if dl, seen := byToken[next.token]; seen && !dl.After(now) {
					delete(byToken, next.token)
					if len(byToken) == 0 {
						delete(g.tokens, next.userID)
					}
				}
			}
		}
		g.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-g.done:
			return
		case <-g.wake:
		case <-timer.C:
		}
	}
}
