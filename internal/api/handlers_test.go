package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/internal/push"
	"github.com/vanchien08/thunderchat/internal/service"
	"github.com/vanchien08/thunderchat/pkg/apperr"
	"github.com/vanchien08/thunderchat/pkg/logger"
)

type fakeSender struct {
	in  service.CreateMessageInput
	msg *models.Message
	err error
}

func (f *fakeSender) Send(_ context.Context, in service.CreateMessageInput) (*models.Message, error) {
	f.in = in
	return f.msg, f.err
}

type fakePager struct {
	msgs []*models.Message
	err  error

	cursor, limit int64
}

func (f *fakePager) GetNewer(_ context.Context, _, _ string, cursor, limit int64) ([]*models.Message, error) {
	f.cursor, f.limit = cursor, limit
	return f.msgs, f.err
}

type fakeStatus struct {
	msg    *models.Message
	pinned bool
	pins   []*models.PinnedMessage
	err    error

	seq    int64
	status models.MessageStatus
}

func (f *fakeStatus) UpdateStatus(_ context.Context, seq int64, status models.MessageStatus) (*models.Message, error) {
	f.seq, f.status = seq, status
	return f.msg, f.err
}

func (f *fakeStatus) TogglePin(_ context.Context, _, _ string, _ int64, _ string) (bool, error) {
	return f.pinned, f.err
}

func (f *fakeStatus) ActivePins(_ context.Context, _, _ string) ([]*models.PinnedMessage, error) {
	return f.pins, f.err
}

type fakeMembers struct {
	member *models.GroupChatMember
	err    error
}

func (f *fakeMembers) FindMember(_ context.Context, _, _ string) (*models.GroupChatMember, error) {
	return f.member, f.err
}

type fakePush struct {
	res *push.Result
	err error
}

func (f *fakePush) SendToUser(_ context.Context, _ string, _ push.Payload) (*push.Result, error) {
	return f.res, f.err
}

type fakeEndpoints struct {
	ep      *models.PushEndpoint
	err     error
	removed []string
}

func (f *fakeEndpoints) Register(_ context.Context, userID, url, auth string) (*models.PushEndpoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.PushEndpoint{ID: "ep1", UserID: userID, URL: url, Auth: auth}, nil
}

func (f *fakeEndpoints) Remove(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

type fakeIndexer struct {
	messages []*models.Message
	users    []*models.User
}

func (f *fakeIndexer) IndexMessage(m *models.Message) { f.messages = append(f.messages, m) }
func (f *fakeIndexer) IndexUser(u *models.User)       { f.users = append(f.users, u) }

type harness struct {
	app       *fiber.App
	sender    *fakeSender
	pager     *fakePager
	status    *fakeStatus
	members   *fakeMembers
	push      *fakePush
	endpoints *fakeEndpoints
	indexer   *fakeIndexer
}

func newHarness() *harness {
	h := &harness{
		sender:    &fakeSender{},
		pager:     &fakePager{},
		status:    &fakeStatus{},
		members:   &fakeMembers{},
		push:      &fakePush{},
		endpoints: &fakeEndpoints{},
		indexer:   &fakeIndexer{},
	}
	handler := NewHandler(h.sender, h.pager, h.status, h.members, h.push, h.endpoints, h.indexer, logger.Nop())
	app := fiber.New()
	rpc := app.Group("/rpc")
	rpc.Post("/messages", handler.CreateMessage)
	rpc.Patch("/messages/:id/status", handler.UpdateMessageStatus)
	rpc.Get("/messages", handler.GetNewerMessages)
	rpc.Get("/groups/:id/members/:uid", handler.FindMemberInGroupChat)
	rpc.Post("/pins/toggle", handler.TogglePin)
	rpc.Get("/pins", handler.ListPins)
	rpc.Post("/notifications/user/:id", handler.SendNotificationToUser)
	rpc.Post("/notifications/endpoints", handler.RegisterPushEndpoint)
	rpc.Post("/index/sync", handler.SyncDataToIndex)
	h.app = app
	return h
}

func (h *harness) do(t *testing.T, method, target string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestCreateMessage(t *testing.T) {
	h := newHarness()
	h.sender.msg = &models.Message{Seq: 7, SenderID: "alice", Type: models.MessageTypeText, DirectChatID: "d1"}

	resp := h.do(t, http.MethodPost, "/rpc/messages", map[string]any{
		"author_id":      "alice",
		"content":        "hello",
		"type":           "TEXT",
		"direct_chat_id": "d1",
		"recipient_id":   "bob",
		"timestamp":      time.Now().UTC(),
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	got := decode[models.Message](t, resp)
	assert.Equal(t, int64(7), got.Seq)
	assert.Equal(t, "alice", h.sender.in.SenderID)
	assert.Equal(t, []byte("hello"), h.sender.in.Plaintext)
	assert.Equal(t, "d1", h.sender.in.DirectChatID)
}

func TestCreateMessageErrorShape(t *testing.T) {
	h := newHarness()
	h.sender.err = apperr.Forbidden("sender is not a member of the chat")

	resp := h.do(t, http.MethodPost, "/rpc/messages", map[string]any{"author_id": "mallory"})

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "sender is not a member of the chat", body["message"])
	assert.Equal(t, true, body["isError"])
}

func TestCreateMessageInternalNotLeaked(t *testing.T) {
	h := newHarness()
	h.sender.err = apperr.Internal("mongo: connection reset")

	resp := h.do(t, http.MethodPost, "/rpc/messages", map[string]any{"author_id": "alice"})

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "internal error", body["message"])
}

func TestUpdateMessageStatus(t *testing.T) {
	h := newHarness()
	h.status.msg = &models.Message{Seq: 42, Status: models.MessageStatusSeen}

	resp := h.do(t, http.MethodPatch, "/rpc/messages/42/status", map[string]any{"status": "SEEN"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(42), h.status.seq)
	assert.Equal(t, models.MessageStatusSeen, h.status.status)
}

func TestUpdateMessageStatusBadID(t *testing.T) {
	h := newHarness()

	resp := h.do(t, http.MethodPatch, "/rpc/messages/abc/status", map[string]any{"status": "SEEN"})

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetNewerMessages(t *testing.T) {
	h := newHarness()
	h.pager.msgs = []*models.Message{{Seq: 5}, {Seq: 6}}

	resp := h.do(t, http.MethodGet, "/rpc/messages?direct_chat_id=d1&cursor=4&limit=10", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[[]models.Message](t, resp)
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), h.pager.cursor)
	assert.Equal(t, int64(10), h.pager.limit)
}

func TestFindMemberInGroupChat(t *testing.T) {
	h := newHarness()
	h.members.member = &models.GroupChatMember{UserID: "bob", Role: models.RoleMember}

	resp := h.do(t, http.MethodGet, "/rpc/groups/g1/members/bob", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[models.GroupChatMember](t, resp)
	assert.Equal(t, models.RoleMember, got.Role)
}

func TestFindMemberAbsentIsNull(t *testing.T) {
	h := newHarness()

	resp := h.do(t, http.MethodGet, "/rpc/groups/g1/members/stranger", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "null", string(bytes.TrimSpace(raw)))
}

func TestTogglePin(t *testing.T) {
	h := newHarness()
	h.status.pinned = true

	resp := h.do(t, http.MethodPost, "/rpc/pins/toggle", map[string]any{
		"actor_id":      "alice",
		"message_id":    9,
		"group_chat_id": "g1",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, true, body["is_pinned"])
}

func TestListPins(t *testing.T) {
	h := newHarness()
	h.status.pins = []*models.PinnedMessage{
		{ScopeID: "group:g1", MessageSeq: 9, PinnedBy: "alice", IsPinned: true},
	}

	resp := h.do(t, http.MethodGet, "/rpc/pins?group_chat_id=g1", nil)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[[]map[string]any](t, resp)
	require.Len(t, body, 1)
	assert.Equal(t, float64(9), body[0]["message_seq"])
	assert.Equal(t, "alice", body[0]["pinned_by"])
}

func TestSendNotificationPrunesFailures(t *testing.T) {
	h := newHarness()
	h.push.res = &push.Result{
		Success: []models.PushEndpoint{{ID: "ok1"}},
		Failure: []models.PushEndpoint{{ID: "dead1"}, {ID: "dead2"}},
	}

	resp := h.do(t, http.MethodPost, "/rpc/notifications/user/bob?prune=true", push.Payload{Kind: "message"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"dead1", "dead2"}, h.endpoints.removed)
}

func TestSendNotificationNoPruneByDefault(t *testing.T) {
	h := newHarness()
	h.push.res = &push.Result{Failure: []models.PushEndpoint{{ID: "dead1"}}}

	resp := h.do(t, http.MethodPost, "/rpc/notifications/user/bob", push.Payload{Kind: "message"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, h.endpoints.removed)
}

func TestRegisterPushEndpoint(t *testing.T) {
	h := newHarness()

	resp := h.do(t, http.MethodPost, "/rpc/notifications/endpoints", map[string]any{
		"user_id": "bob",
		"url":     "https://push.example.com/bob",
	})

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	got := decode[models.PushEndpoint](t, resp)
	assert.Equal(t, "bob", got.UserID)
}

func TestRegisterPushEndpointMissingFields(t *testing.T) {
	h := newHarness()

	resp := h.do(t, http.MethodPost, "/rpc/notifications/endpoints", map[string]any{"user_id": "bob"})

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSyncDataToIndex(t *testing.T) {
	h := newHarness()

	resp := h.do(t, http.MethodPost, "/rpc/index/sync", map[string]any{
		"kind": "message",
		"data": map[string]any{"id": 3, "sender_id": "alice"},
	})

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Len(t, h.indexer.messages, 1)
}

func TestSyncDataToIndexUnknownKind(t *testing.T) {
	h := newHarness()

	resp := h.do(t, http.MethodPost, "/rpc/index/sync", map[string]any{
		"kind": "sticker",
		"data": map[string]any{},
	})

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, h.indexer.messages)
	assert.Empty(t, h.indexer.users)
}
