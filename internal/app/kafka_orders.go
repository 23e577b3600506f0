package app

import (
	"context"
	"errors"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/service/orders"
	"service-dispatch/internal/transport/kafka"
)

// makeOrdersKafka marks events the processor rejects as invalid as permanent,
// so the consumer commits them instead of retrying forever.
func makeOrdersKafka(p *orders.Processor) kafka.HandleFunc {
	return func(ctx context.Context, event orders.Event) error {
		err := p.Handle(ctx, event)
		if err != nil && errors.Is(err, apperr.ErrInvalid) {
			return kafka.Permanent(err)
		}
		return err
	}
}
