package orders

import (
	"context"
	"errors"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
)

// Processor turns order events into delivery operations
type Processor struct {
	delivery DeliveryPort
	logger   logx.Logger
	factory  *actionFactory
}

// NewProcessor creates a new orders.Processor
func NewProcessor(deliverySvc DeliveryPort, logger logx.Logger) *Processor {
	if logger == nil {
		logger = logx.Nop()
	}
	p := &Processor{
		delivery: deliverySvc,
		logger:   logger,
	}
	p.factory = newActionFactory(p.onCreated, p.onCanceled)
	return p
}

// Handle processes a single orders.Event. Unknown statuses are ignored.
// Validation failures are returned wrapping apperr.ErrInvalid.
func (p *Processor) Handle(ctx context.Context, e Event) error {
	fn, ok := p.factory.get(e.Status)
	if !ok {
		p.logger.Debug("order status ignored",
			logx.String("order_id", e.OrderID),
			logx.String("status", e.Status),
		)
		return nil
	}
	return fn(ctx, e)
}

func (p *Processor) onCreated(ctx context.Context, e Event) error {
	_, err := p.delivery.CreateDelivery(ctx, &domain.Delivery{
		OrderID:         e.OrderID,
		CustomerName:    e.CustomerName,
		CustomerAddress: e.CustomerAddress,
		CustomerPhone:   e.CustomerPhone,
		RequestedDate:   e.RequestedDate,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperr.ErrConflict):
		p.logger.Debug("order already has a delivery", logx.String("order_id", e.OrderID))
		return nil
	default:
		return err
	}
}

func (p *Processor) onCanceled(ctx context.Context, e Event) error {
	_, err := p.delivery.CancelByOrderID(ctx, e.OrderID)
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrPreconditionFailed) {
		p.logger.Debug("order cancel ignored",
			logx.String("order_id", e.OrderID),
			logx.Err(err),
		)
		return nil
	}
	return err
}
