package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	pkgkafka "SignalView/pkg/kafka"
	applogger "SignalView/pkg/logger"
)

// CommitEvent is published by the inference job after it commits new
// predictions.
type CommitEvent struct {
	Source  string `json:"source"`
	Version int64  `json:"version"`
}

// Invalidator drops cached snapshots of a source.
type Invalidator interface {
	InvalidateSource(source string) int
}

// InvalidationHandler consumes commit events and invalidates the cache.
type InvalidationHandler struct {
	topic string
	inv   Invalidator
	l     *applogger.Logger
}

func NewInvalidationHandler(topic string, inv Invalidator, l *applogger.Logger) *InvalidationHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &InvalidationHandler{topic: topic, inv: inv, l: l}
}

func (h *InvalidationHandler) Topic() string { return h.topic }

func (h *InvalidationHandler) Handle(_ context.Context, b []byte) error {
	var ev CommitEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return fmt.Errorf("decode commit event: %w", err)
	}
	n := h.inv.InvalidateSource(ev.Source)
	h.l.Debug("commit event handled",
		applogger.String("source", ev.Source),
		applogger.Int64("version", ev.Version),
		applogger.Int("invalidated", n),
	)
	return nil
}

var _ pkgkafka.MessageHandler = (*InvalidationHandler)(nil)
