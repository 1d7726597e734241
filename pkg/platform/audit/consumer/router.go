package consumer

import (
	"context"
	"log/slog"

	"contribgate/internal/platform/kafka/consumer"
)

// TopicHandler handles messages from one audit topic.
type TopicHandler interface {
	Handle(ctx context.Context, msg *consumer.Message) error
}

// Router satisfies consumer.Handler by dispatching on msg.Topic. Messages on
// a topic with no handler go to the fallback, or are logged and committed
// when there is none so an unknown topic cannot stall the partition.
type Router struct {
	handlers map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
}

func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	return &Router{
		handlers: make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register binds handler to each of topics.
func (r *Router) Register(handler TopicHandler, topics ...string) {
	for _, topic := range topics {
		r.handlers[topic] = handler
	}
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	if handler, ok := r.handlers[msg.Topic]; ok {
		return handler.Handle(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg)
	}
	r.logger.WarnContext(ctx, "no handler for audit topic, skipping message",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
	)
	return nil
}
