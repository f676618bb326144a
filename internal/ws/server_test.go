package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanchien08/thunderchat/internal/dedup"
	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/internal/registry"
	"github.com/vanchien08/thunderchat/internal/service"
	"github.com/vanchien08/thunderchat/pkg/apperr"
	"github.com/vanchien08/thunderchat/pkg/logger"
)

type fakeSender struct {
	mu     sync.Mutex
	inputs []service.CreateMessageInput
	err    error
}

func (f *fakeSender) Send(_ context.Context, in service.CreateMessageInput) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Message{Seq: int64(len(f.inputs))}, nil
}

func (f *fakeSender) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type fakeStatus struct {
	mu   sync.Mutex
	seen []int64
	err  error
}

func (f *fakeStatus) UpdateStatus(_ context.Context, seq int64, _ models.MessageStatus) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, seq)
	return &models.Message{Seq: seq, Status: models.MessageStatusSeen}, f.err
}

type fakePresence struct{}

func (fakePresence) SetPresence(context.Context, string, bool) error { return nil }

type fakePeers map[string][]string

func (f fakePeers) PeersOf(_ context.Context, uid string) ([]string, error) {
	return f[uid], nil
}

type fakeResolver struct {
	direct map[string][]string
}

func (r *fakeResolver) DirectChatMembers(_ context.Context, id string) ([]string, error) {
	return r.direct[id], nil
}

func (r *fakeResolver) GroupChatMembers(context.Context, string) ([]string, error) {
	return nil, nil
}

type fakeConn struct {
	mu     sync.Mutex
	frames []outbound
}

func (c *fakeConn) Send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, outbound{Event: event, Data: payload})
	return nil
}

func (c *fakeConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

type testEnv struct {
	srv    *Server
	sender *fakeSender
	status *fakeStatus
	guard  *dedup.Guard
	reg    *registry.Registry
}

func newTestEnv(t *testing.T, resolver *fakeResolver) *testEnv {
	t.Helper()
	if resolver == nil {
		resolver = &fakeResolver{direct: map[string][]string{}}
	}
	guard := dedup.NewGuard(time.Hour)
	t.Cleanup(guard.Close)
	reg := registry.New(resolver, logger.Nop())
	sender := &fakeSender{}
	status := &fakeStatus{}
	srv := NewServer(reg, guard, sender, status, fakePresence{}, fakePeers{}, nil, 10, logger.Nop())
	return &testEnv{srv: srv, sender: sender, status: status, guard: guard, reg: reg}
}

func testClient(uid string) *Client {
	return &Client{
		send:  make(chan []byte, 256),
		uid:   uid,
		rooms: make(map[string]bool),
	}
}

func drainFrames(t *testing.T, c *Client) []outbound {
	t.Helper()
	var out []outbound
	for {
		select {
		case b := <-c.send:
			var f outbound
			require.NoError(t, json.Unmarshal(b, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func envelope(t *testing.T, event, token string, data interface{}) Envelope {
	t.Helper()
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return Envelope{Event: event, Token: token, Data: b}
}

func TestDispatchSendMessageDirect(t *testing.T) {
	env := newTestEnv(t, nil)
	c := testClient("alice")

	env.srv.dispatch(c, envelope(t, EventSendMessageDirect, "tok-1", sendMessageData{
		DirectChatID: "d1", RecipientID: "bob", Content: "hi", Type: "TEXT",
	}))

	require.Equal(t, 1, env.sender.calls())
	in := env.sender.inputs[0]
	assert.Equal(t, "alice", in.SenderID)
	assert.Equal(t, "d1", in.DirectChatID)
	assert.Empty(t, in.GroupChatID)
	assert.Equal(t, []byte("hi"), in.Plaintext)
	assert.Empty(t, drainFrames(t, c))
}

func TestDispatchDuplicateTokenIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	c := testClient("alice")
	msg := envelope(t, EventSendMessageDirect, "tok-1", sendMessageData{DirectChatID: "d1", Content: "hi", Type: "TEXT"})

	env.srv.dispatch(c, msg)
	env.srv.dispatch(c, msg)

	assert.Equal(t, 1, env.sender.calls())
}

func TestDispatchTokenReusableAfterClear(t *testing.T) {
	env := newTestEnv(t, nil)
	c := testClient("alice")
	msg := envelope(t, EventSendMessageDirect, "tok-1", sendMessageData{DirectChatID: "d1", Content: "hi", Type: "TEXT"})

	env.srv.dispatch(c, msg)
	env.guard.Clear("alice")
	env.srv.dispatch(c, msg)

	assert.Equal(t, 2, env.sender.calls())
}

func TestDispatchSendFailureYieldsErrorEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sender.err = apperr.Forbidden("sender is not a participant of this chat")
	c := testClient("mallory")

	env.srv.dispatch(c, envelope(t, EventSendMessageDirect, "", sendMessageData{DirectChatID: "d1", Content: "hi", Type: "TEXT"}))

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, EventError, frames[0].Event)
	payload := frames[0].Data.(map[string]interface{})
	assert.Equal(t, true, payload["isError"])
	assert.Equal(t, float64(403), payload["httpStatus"])
	assert.Equal(t, "sender is not a participant of this chat", payload["message"])
}

func TestDispatchInternalErrorIsNotLeaked(t *testing.T) {
	env := newTestEnv(t, nil)
	env.sender.err = apperr.Internal("mongo timeout on shard 3")
	c := testClient("alice")

	env.srv.dispatch(c, envelope(t, EventSendMessageDirect, "", sendMessageData{DirectChatID: "d1", Content: "hi", Type: "TEXT"}))

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	payload := frames[0].Data.(map[string]interface{})
	assert.Equal(t, "internal error", payload["message"])
	assert.Equal(t, float64(500), payload["httpStatus"])
}

func TestDispatchMalformedPayload(t *testing.T) {
	env := newTestEnv(t, nil)
	c := testClient("alice")

	env.srv.dispatch(c, Envelope{Event: EventSendMessageDirect, Data: json.RawMessage(`{"direct_chat_id": 42}`)})

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, EventError, frames[0].Event)
	assert.Equal(t, 0, env.sender.calls())
}

func TestDispatchUnknownEvent(t *testing.T) {
	env := newTestEnv(t, nil)
	c := testClient("alice")

	env.srv.dispatch(c, Envelope{Event: "launch_missiles"})

	frames := drainFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, EventError, frames[0].Event)
}

func TestDispatchMessageSeen(t *testing.T) {
	env := newTestEnv(t, nil)
	c := testClient("bob")

	env.srv.dispatch(c, envelope(t, EventMessageSeenDirect, "tok-2", messageSeenData{MessageID: 7}))

	assert.Equal(t, []int64{7}, env.status.seen)
}

func TestDispatchTypingReachesRoomSubscribers(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := testClient("alice")
	bob := testClient("bob")
	carol := testClient("carol")

	env.srv.dispatch(bob, envelope(t, EventJoinDirectRoom, "tok-b", joinRoomData{ChatID: "d1"}))
	env.srv.dispatch(alice, envelope(t, EventTypingDirect, "", typingData{DirectChatID: "d1"}))

	frames := drainFrames(t, bob)
	require.Len(t, frames, 1)
	assert.Equal(t, EventTypingDirect, frames[0].Event)
	// the author and unsubscribed connections see nothing
	assert.Empty(t, drainFrames(t, alice))
	assert.Empty(t, drainFrames(t, carol))
}

func TestDispatchJoinRoomAuthorExcludedFromOwnTyping(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := testClient("alice")

	env.srv.dispatch(alice, envelope(t, EventJoinDirectRoom, "tok-a", joinRoomData{ChatID: "d1"}))
	env.srv.dispatch(alice, envelope(t, EventTypingDirect, "", typingData{DirectChatID: "d1"}))

	assert.Empty(t, drainFrames(t, alice))
}

func TestDisconnectLeavesRooms(t *testing.T) {
	env := newTestEnv(t, nil)
	bob := testClient("bob")
	bob.connID = "b1"
	env.reg.Register("bob", "b1", bob)

	env.srv.dispatch(bob, envelope(t, EventJoinDirectRoom, "tok-b", joinRoomData{ChatID: "d1"}))
	env.srv.disconnect(bob)

	alice := testClient("alice")
	env.srv.dispatch(alice, envelope(t, EventTypingDirect, "", typingData{DirectChatID: "d1"}))

	assert.Empty(t, drainFrames(t, bob))
}

func TestBroadcastOnlineStatusReachesPeers(t *testing.T) {
	resolver := &fakeResolver{direct: map[string][]string{}}
	guard := dedup.NewGuard(time.Hour)
	t.Cleanup(guard.Close)
	reg := registry.New(resolver, logger.Nop())
	srv := NewServer(reg, guard, &fakeSender{}, &fakeStatus{}, fakePresence{}, fakePeers{"alice": {"bob"}}, nil, 10, logger.Nop())

	bob := &fakeConn{}
	reg.Register("bob", "b1", bob)

	srv.broadcastOnlineStatus(context.Background(), "alice", true)

	require.Len(t, bob.frames, 1)
	assert.Equal(t, EventOnlineStatus, bob.frames[0].Event)
}
