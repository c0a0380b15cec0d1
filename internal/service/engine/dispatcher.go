package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/harborsupport/console/internal/logger"
)

// Dispatcher consumes the single stream of tagged push events and applies
// them to the engine in arrival order. Running all event handling through
// one loop keeps merge ordering deterministic and testable.
type Dispatcher struct {
	engine *Engine
	events chan Event
}

// NewDispatcher creates a dispatcher with the given buffer depth.
func NewDispatcher(e *Engine, buffer int) *Dispatcher {
	if buffer < 1 {
		buffer = 256
	}
	return &Dispatcher{
		engine: e,
		events: make(chan Event, buffer),
	}
}

// Enqueue hands one event to the dispatcher. Safe for concurrent use; the
// push client calls it from its read loop. Events arriving while the buffer
// is full are dropped with a warning rather than blocking the reader.
func (d *Dispatcher) Enqueue(ev Event) {
	select {
	case d.events <- ev:
	default:
		logger.Warn("event buffer full, dropping push event",
			zap.String("type", string(ev.Type)),
			zap.String("conversation_id", ev.ConversationID))
	}
}

// Run processes events until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("event dispatcher stopped", zap.Error(ctx.Err()))
			return
		case ev := <-d.events:
			d.engine.HandleEvent(ev)
		}
	}
}
