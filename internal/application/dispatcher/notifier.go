package dispatcher

import (
	"context"
	"fmt"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/garyjia/expedition-settlement/internal/domain/event"
)

const discrepancyHandlerName = "discrepancy-notifier"

// AsyncNotifier queues discrepancy alerts on the dispatcher and delivers
// them through the wrapped notifier in the background.
type AsyncNotifier struct {
	dispatcher *Dispatcher
}

var _ port.DiscrepancyNotifier = (*AsyncNotifier)(nil)

// NewAsyncNotifier subscribes next to discrepancy events and returns the
// publisher side.
func NewAsyncNotifier(d *Dispatcher, next port.DiscrepancyNotifier) *AsyncNotifier {
	d.Subscribe(event.TypeDiscrepancyDetected, discrepancyHandlerName, func(ctx context.Context, evt *event.Event) error {
		v, _ := evt.Get("client")
		client, _ := v.(*entity.Client)
		v, _ = evt.Get("package")
		pkg, _ := v.(*entity.Package)
		if client == nil || pkg == nil {
			return fmt.Errorf("event %s carries no client or package", evt.ID)
		}
		return next.NotifyDiscrepancy(ctx, client, pkg)
	})
	return &AsyncNotifier{dispatcher: d}
}

// NotifyDiscrepancy queues a discrepancy event. It fails only when the event
// cannot be queued; delivery errors surface in the dispatcher log.
func (n *AsyncNotifier) NotifyDiscrepancy(ctx context.Context, client *entity.Client, pkg *entity.Package) error {
	if client == nil || pkg == nil {
		return fmt.Errorf("%w: client and package are required", entity.ErrInvalidInput)
	}

	payload := map[string]interface{}{
		"client":  client,
		"package": pkg.Clone(),
	}
	if pkg.Verification != nil {
		payload["delta"] = pkg.Verification.Delta.String()
		payload["weights_match"] = pkg.Verification.WeightsMatch
	}

	evt := event.NewEvent(event.TypeDiscrepancyDetected, pkg.ID, pkg.ExpeditionID, payload)
	// the request context ends with the HTTP response
	if err := n.dispatcher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		return fmt.Errorf("queue discrepancy for package %s: %w", pkg.ID, err)
	}
	return nil
}
