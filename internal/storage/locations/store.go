// Package locations persists location samples: the latest fix per delivery and its history.
package locations

import (
	"context"

	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
)

// Store keeps the location trail of deliveries.
type Store interface {
	Save(ctx context.Context, s domain.LocationSample) error
	// Latest returns nil when the delivery has no samples.
	Latest(ctx context.Context, deliveryID int64) (*domain.LocationSample, error)
	// History returns samples oldest first. page starts at 1.
	History(ctx context.Context, deliveryID int64, page, limit int) (domain.LocationPage, error)
}

// Cache holds only the latest fix.
type Cache interface {
	Save(ctx context.Context, s domain.LocationSample) error
	Latest(ctx context.Context, deliveryID int64) (*domain.LocationSample, error)
}

// Composite writes history first, then the cache. Latest reads the cache and
// falls back to the newest history record.
type Composite struct {
	history Store
	cache   Cache
	logger  logx.Logger
}

// NewComposite combines a history store with a latest-fix cache. cache may be nil.
func NewComposite(history Store, cache Cache, logger logx.Logger) *Composite {
	if logger == nil {
		logger = logx.Nop()
	}
	return &Composite{history: history, cache: cache, logger: logger}
}

// Save appends to history and refreshes the cache.
func (c *Composite) Save(ctx context.Context, s domain.LocationSample) error {
	if err := c.history.Save(ctx, s); err != nil {
		return err
	}
	if c.cache == nil {
		return nil
	}
	if err := c.cache.Save(ctx, s); err != nil {
		c.logger.Warn("latest location cache write failed",
			logx.Int64("delivery_id", s.DeliveryID),
			logx.Err(err),
		)
	}
	return nil
}

// Latest prefers the cache.
func (c *Composite) Latest(ctx context.Context, deliveryID int64) (*domain.LocationSample, error) {
	if c.cache != nil {
		s, err := c.cache.Latest(ctx, deliveryID)
		if err == nil && s != nil {
			return s, nil
		}
		if err != nil {
			c.logger.Warn("latest location cache read failed",
				logx.Int64("delivery_id", deliveryID),
				logx.Err(err),
			)
		}
	}
	return c.history.Latest(ctx, deliveryID)
}

// History reads from the history store.
func (c *Composite) History(ctx context.Context, deliveryID int64, page, limit int) (domain.LocationPage, error) {
	return c.history.History(ctx, deliveryID, page, limit)
}
