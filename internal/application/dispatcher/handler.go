package dispatcher

import (
	"context"

	"github.com/garyjia/expedition-settlement/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo identifies a subscribed handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
