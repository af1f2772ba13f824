package notify

import (
	"github.com/willwe-xyz/willwe-app/internal/events"
	"go.uber.org/zap"
)

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Show(Notification)   {}
func (NopSink) Update(Notification) {}
func (NopSink) Close(string)        {}

// MultiSink fans out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Show(n Notification) {
	for _, s := range m {
		s.Show(n)
	}
}

func (m MultiSink) Update(n Notification) {
	for _, s := range m {
		s.Update(n)
	}
}

func (m MultiSink) Close(id string) {
	for _, s := range m {
		s.Close(id)
	}
}

// LogSink writes notifications to a zap logger at a level matching their status.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("notification")}
}

func (s *LogSink) Show(n Notification) {
	s.log(n, "Notification shown")
}

func (s *LogSink) Update(n Notification) {
	s.log(n, "Notification updated")
}

func (s *LogSink) Close(id string) {
	s.logger.Debug("Notification closed", zap.String("id", id))
}

func (s *LogSink) log(n Notification, msg string) {
	fields := []zap.Field{
		zap.String("id", n.ID),
		zap.String("status", string(n.Status)),
		zap.String("title", n.Title),
		zap.String("description", n.Description),
	}
	if n.Link != "" {
		fields = append(fields, zap.String("link", n.Link))
	}
	switch n.Status {
	case StatusError:
		s.logger.Error(msg, fields...)
	case StatusWarning:
		s.logger.Warn(msg, fields...)
	default:
		s.logger.Info(msg, fields...)
	}
}

// BusSink republishes notification changes as events.
type BusSink struct {
	publisher events.Publisher
	logger    *zap.Logger
}

func NewBusSink(publisher events.Publisher, logger *zap.Logger) *BusSink {
	return &BusSink{publisher: publisher, logger: logger.Named("notification-bus")}
}

func (s *BusSink) Show(n Notification) {
	s.publish(toEvent(events.NotificationShown, n))
}

func (s *BusSink) Update(n Notification) {
	s.publish(toEvent(events.NotificationUpdated, n))
}

func (s *BusSink) Close(id string) {
	s.publish(events.NotificationEvent{
		BaseEvent: events.NewBase(events.NotificationClosed),
		ID:        id,
	})
}

func (s *BusSink) publish(e events.NotificationEvent) {
	if err := s.publisher.Publish(e); err != nil {
		s.logger.Warn("Failed to publish notification event",
			zap.String("id", e.ID),
			zap.Error(err))
	}
}

func toEvent(t events.EventType, n Notification) events.NotificationEvent {
	return events.NotificationEvent{
		BaseEvent:   events.NewBase(t),
		ID:          n.ID,
		Title:       n.Title,
		Description: n.Description,
		Link:        n.Link,
		Status:      string(n.Status),
		Duration:    n.Duration,
	}
}
