package fanout

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanchien08/thunderchat/internal/keyring"
	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/internal/registry"
	"github.com/vanchien08/thunderchat/internal/repository"
	"github.com/vanchien08/thunderchat/internal/service"
	"github.com/vanchien08/thunderchat/pkg/logger"
)

// fakes for the authoring side so the whole send path can run against
// the real service, keyring, registry and router.

type memStore struct {
	mu    sync.Mutex
	bySeq map[int64]*models.Message
}

func (s *memStore) Insert(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.bySeq[m.Seq] = &cp
	return nil
}

func (s *memStore) GetBySeq(_ context.Context, seq int64) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.bySeq[seq]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) GetNewer(context.Context, string, string, int64, int64) ([]*models.Message, error) {
	return nil, nil
}

func (s *memStore) SetStatus(context.Context, int64, models.MessageStatus) (*models.Message, error) {
	return nil, repository.ErrNotFound
}

type counter struct {
	mu sync.Mutex
	n  int64
}

func (c *counter) Next(context.Context, string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n, nil
}

type noGroups struct{}

func (noGroups) GetByID(context.Context, string) (*models.GroupChat, error) {
	return nil, repository.ErrNotFound
}

type idLookup struct{}

func (idLookup) User(_ context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, Username: id}, nil
}

func (idLookup) Sticker(_ context.Context, id string) (*models.Sticker, error) {
	return &models.Sticker{ID: id}, nil
}

func (idLookup) Media(_ context.Context, id string) (*models.Media, error) {
	return &models.Media{ID: id}, nil
}

type recConn struct {
	mu     sync.Mutex
	events []string
	last   interface{}
}

func (c *recConn) Send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	c.last = payload
	return nil
}

type staticResolver map[string][]string

func (r staticResolver) DirectChatMembers(_ context.Context, id string) ([]string, error) {
	return r[id], nil
}

func (r staticResolver) GroupChatMembers(_ context.Context, id string) ([]string, error) {
	return r[id], nil
}

// Full direct-chat send path: authoring encrypts and persists, routing
// reaches the peer's live connection with decryptable content and the
// chat-list cursor lands on the new id.
func TestDirectSendReachesPeerEndToEnd(t *testing.T) {
	ring, err := keyring.NewRing(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)

	store := &memStore{bySeq: make(map[int64]*models.Message)}
	directs := testDirects()
	svc := service.NewMessageService(store, &counter{}, directs, noGroups{}, idLookup{}, ring, logger.Nop())

	reg := registry.New(staticResolver{"d1": {"alice", "bob"}}, logger.Nop())
	bob := &recConn{}
	reg.Register("bob", "b1", bob)

	router := NewRouter(reg, fakePresence{"bob": true}, &fakeNotifier{}, directs, testGroups(), nil, logger.Nop())
	p := NewPipeline(svc, router, nopIndexer{})

	m, err := p.Send(context.Background(), service.CreateMessageInput{
		SenderID:     "alice",
		Plaintext:    []byte("hi"),
		Type:         models.MessageTypeText,
		DirectChatID: "d1",
		RecipientID:  "bob",
	})
	require.NoError(t, err)

	stored, err := store.GetBySeq(context.Background(), m.Seq)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSent, stored.Status)

	require.Equal(t, []string{EventSendMessageDirect}, bob.events)
	got, ok := bob.last.(*models.Message)
	require.True(t, ok)
	pt, err := ring.Decrypt(got.Content, got.KeyVersion)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), pt)

	assert.Equal(t, m.Seq, directs.cursors["d1"])
}
