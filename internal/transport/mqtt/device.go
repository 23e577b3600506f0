package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"service-dispatch/internal/apperr"
	"service-dispatch/internal/domain"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/service/tracking"
)

// Broker is the part of the client used by the device feed.
type Broker interface {
	Connect() error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topics ...string) error
	Disconnect()
}

// Reporter accepts device reports for a driver.
type Reporter interface {
	ReportDevice(ctx context.Context, driverID int64, r tracking.DeviceReport) error
}

type devicePayload struct {
	Lat       *float64  `json:"lat"`
	Lng       *float64  `json:"lng"`
	Speed     float64   `json:"speed"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceFeed forwards `{prefix}/{driverID}/location` messages to the tracker.
type DeviceFeed struct {
	broker   Broker
	reporter Reporter
	prefix   string
	timeout  time.Duration
	logger   logx.Logger
}

// NewDeviceFeed creates a device feed.
func NewDeviceFeed(broker Broker, reporter Reporter, prefix string, timeout time.Duration, logger logx.Logger) *DeviceFeed {
	if logger == nil {
		logger = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DeviceFeed{
		broker:   broker,
		reporter: reporter,
		prefix:   strings.Trim(prefix, "/"),
		timeout:  timeout,
		logger:   logger,
	}
}

// Topic returns the subscription filter.
func (f *DeviceFeed) Topic() string {
	return f.prefix + "/+/location"
}

// Run connects, subscribes and blocks until ctx is done.
func (f *DeviceFeed) Run(ctx context.Context) error {
	if err := f.broker.Connect(); err != nil {
		return err
	}
	defer f.broker.Disconnect()

	topic := f.Topic()
	if err := f.broker.Subscribe(topic, 1, f.Handle); err != nil {
		return err
	}
	f.logger.Info("device feed started", logx.String("topic", topic))

	<-ctx.Done()
	if err := f.broker.Unsubscribe(topic); err != nil {
		f.logger.Warn("mqtt unsubscribe failed", logx.Err(err))
	}
	return ctx.Err()
}

// Handle processes one device message.
func (f *DeviceFeed) Handle(topic string, payload []byte) {
	driverID, ok := f.driverFromTopic(topic)
	if !ok {
		f.logger.Warn("device topic not recognised", logx.String("topic", topic))
		return
	}

	var p devicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		f.logger.Warn("device payload malformed", logx.Int64("driver_id", driverID), logx.Err(err))
		return
	}
	if p.Lat == nil || p.Lng == nil {
		f.logger.Warn("device payload without coordinates", logx.Int64("driver_id", driverID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	err := f.reporter.ReportDevice(ctx, driverID, tracking.DeviceReport{
		Location:  domain.Location{Lat: *p.Lat, Lng: *p.Lng},
		Speed:     p.Speed,
		Status:    p.Status,
		Timestamp: p.Timestamp,
	})
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		f.logger.Debug("device report dropped, no active feed", logx.Int64("driver_id", driverID))
	case errors.Is(err, apperr.ErrInvalid):
		f.logger.Warn("device report rejected", logx.Int64("driver_id", driverID), logx.Err(err))
	default:
		f.logger.Error("device report failed", logx.Int64("driver_id", driverID), logx.Err(err))
	}
}

func (f *DeviceFeed) driverFromTopic(topic string) (int64, bool) {
	rest, ok := strings.CutPrefix(topic, f.prefix+"/")
	if !ok {
		return 0, false
	}
	raw, ok := strings.CutSuffix(rest, "/location")
	if !ok || strings.Contains(raw, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
