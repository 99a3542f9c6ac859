package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/scheduling"
)

// availabilityCache keeps the available-slots listing for one doctor and day
// in Redis. Any error is treated as a miss; the database stays authoritative.
type availabilityCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewAvailabilityCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) scheduling.AvailabilityCache {
	return &availabilityCache{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func availabilityKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("avail:%s:%s", doctorID.String(), date.Format("2006-01-02"))
}

func (c *availabilityCache) GetAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]scheduling.TimeSlot, bool) {
	raw, err := c.client.Get(ctx, availabilityKey(doctorID, date)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("availability cache read")
		}
		return nil, false
	}

	var slots []scheduling.TimeSlot
	if err := json.Unmarshal(raw, &slots); err != nil {
		c.log.Warn().Err(err).Msg("availability cache decode")
		return nil, false
	}
	return slots, true
}

func (c *availabilityCache) SetAvailable(ctx context.Context, doctorID uuid.UUID, date time.Time, slots []scheduling.TimeSlot) {
	data, err := json.Marshal(slots)
	if err != nil {
		c.log.Warn().Err(err).Msg("availability cache encode")
		return
	}
	if err := c.client.Set(ctx, availabilityKey(doctorID, date), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("availability cache write")
	}
}

func (c *availabilityCache) Invalidate(ctx context.Context, doctorID uuid.UUID, date time.Time) {
	if err := c.client.Del(ctx, availabilityKey(doctorID, date)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("availability cache invalidate")
	}
}
