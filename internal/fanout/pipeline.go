package fanout

import (
	"context"

	"github.com/vanchien08/thunderchat/internal/models"
	"github.com/vanchien08/thunderchat/internal/service"
)

type Creator interface {
	CreateMessage(ctx context.Context, in service.CreateMessageInput) (*models.Message, error)
}

type Indexer interface {
	IndexMessage(m *models.Message)
}

// Pipeline serializes authoring and routing per conversation scope so
// that delivery order matches sequence assignment order, then hands the
// message to the indexing relay off the critical path.
type Pipeline struct {
	creator Creator
	router  *Router
	indexer Indexer
	locks   *scopeLocks
}

func NewPipeline(creator Creator, router *Router, indexer Indexer) *Pipeline {
	return &Pipeline{
		creator: creator,
		router:  router,
		indexer: indexer,
		locks:   newScopeLocks(),
	}
}

// Send creates and routes one message. Concurrent sends to distinct
// scopes proceed in parallel; sends to the same scope are serialized
// through sequence assignment and routing.
func (p *Pipeline) Send(ctx context.Context, in service.CreateMessageInput) (*models.Message, error) {
	key := scopeKey(in)
	p.locks.lock(key)
	defer p.locks.unlock(key)

	m, err := p.creator.CreateMessage(ctx, in)
	if err != nil {
		return nil, err
	}
	p.router.Route(ctx, m)
	p.indexer.IndexMessage(m)
	return m, nil
}

func scopeKey(in service.CreateMessageInput) string {
	return models.ScopeKey(in.DirectChatID, in.GroupChatID)
}
