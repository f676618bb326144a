package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thunderchat_messages_created_total",
		Help: "Messages persisted by the authoring unit.",
	})
	FanoutEmits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thunderchat_fanout_emits_total",
		Help: "Realtime events emitted by the delivery router.",
	}, []string{"event"})
	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "thunderchat_push_deliveries_total",
		Help: "Push endpoint delivery attempts by outcome.",
	}, []string{"outcome"})
	IndexRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thunderchat_index_retries_total",
		Help: "Indexing relay retry attempts.",
	})
	IndexDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thunderchat_index_dropped_total",
		Help: "Indexing relay entities dropped after retry exhaustion or full queue.",
	})
	DedupRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "thunderchat_dedup_rejected_total",
		Help: "Client events rejected as duplicates.",
	})
)

// Handler adapts the Prometheus scrape handler onto fasthttp.
func Handler() fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}
