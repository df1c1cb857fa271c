package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/database"
)

// RedisPublisher forwards committed events to the engine event channel,
// one JSON message per event.
type RedisPublisher struct {
	cache  *database.Cache
	logger *zap.Logger
}

func NewRedisPublisher(cache *database.Cache, logger *zap.Logger) *RedisPublisher {
	return &RedisPublisher{cache: cache, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, events []engine.Event) {
	if !p.cache.IsAvailable() {
		return
	}
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			p.logger.Error("Failed to encode event", zap.String("type", string(ev.Type)), zap.Error(err))
			continue
		}
		if err := p.cache.PublishMessage(ctx, database.ChannelEngineEvents, data); err != nil {
			p.logger.Warn("Failed to publish event",
				zap.String("market", ev.Market),
				zap.Uint64("seq", ev.Seq),
				zap.Error(err))
		}
	}
}
