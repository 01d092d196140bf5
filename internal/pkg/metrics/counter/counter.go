package counter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	fanoutOKKey     = "fanout:counters:ok"
	fanoutFailedKey = "fanout:counters:failed"
)

// StepStats is the outcome count of one fan-out step for one event type.
type StepStats struct {
	EventType string `json:"event_type"`
	Step      string `json:"step"`
	OK        int64  `json:"ok"`
	Failed    int64  `json:"failed"`
}

// FanoutCounter counts dispatcher step outcomes in Redis hashes keyed by
// "<event type>|<step>". It implements events.Recorder.
type FanoutCounter struct {
	rdb *redis.Client
}

func NewFanoutCounter(rdb *redis.Client) *FanoutCounter {
	return &FanoutCounter{rdb: rdb}
}

func field(t events.Type, step string) string {
	return string(t) + "|" + step
}

// RecordStep increments the ok or failed counter. Redis errors are logged
// and otherwise ignored.
func (c *FanoutCounter) RecordStep(ctx context.Context, t events.Type, step string, err error) {
	key := fanoutOKKey
	if err != nil {
		key = fanoutFailedKey
	}
	if herr := c.rdb.HIncrBy(ctx, key, field(t, step), 1).Err(); herr != nil {
		log.Warnf("[Counter] Failed to count %s %s: %v", t, step, herr)
	}
}

// Snapshot returns the current counters sorted by event type and step.
func (c *FanoutCounter) Snapshot(ctx context.Context) ([]StepStats, error) {
	ok, err := c.rdb.HGetAll(ctx, fanoutOKKey).Result()
	if err != nil {
		return nil, err
	}
	failed, err := c.rdb.HGetAll(ctx, fanoutFailedKey).Result()
	if err != nil {
		return nil, err
	}
	return merge(ok, failed), nil
}

// Drain returns the counters and resets them. Each hash is renamed to a
// temporary key first so increments that race with the drain are kept.
func (c *FanoutCounter) Drain(ctx context.Context) ([]StepStats, error) {
	ok, err := c.drainHash(ctx, fanoutOKKey)
	if err != nil {
		return nil, err
	}
	failed, err := c.drainHash(ctx, fanoutFailedKey)
	if err != nil {
		return nil, err
	}
	return merge(ok, failed), nil
}

func (c *FanoutCounter) drainHash(ctx context.Context, key string) (map[string]string, error) {
	tmpKey := fmt.Sprintf("%s:tmp:%d", key, time.Now().UnixNano())
	if err := c.rdb.Rename(ctx, key, tmpKey).Err(); err != nil {
		if errors.Is(err, redis.Nil) || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return map[string]string{}, nil
		}
		return nil, err
	}
	defer c.rdb.Del(ctx, tmpKey)

	return c.rdb.HGetAll(ctx, tmpKey).Result()
}

func merge(ok, failed map[string]string) []StepStats {
	byField := make(map[string]*StepStats)
	get := func(f string) *StepStats {
		if s, exists := byField[f]; exists {
			return s
		}
		eventType, step, _ := strings.Cut(f, "|")
		s := &StepStats{EventType: eventType, Step: step}
		byField[f] = s
		return s
	}
	for f, v := range ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			get(f).OK = n
		}
	}
	for f, v := range failed {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			get(f).Failed = n
		}
	}

	out := make([]StepStats, 0, len(byField))
	for _, s := range byField {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventType != out[j].EventType {
			return out[i].EventType < out[j].EventType
		}
		return out[i].Step < out[j].Step
	})
	return out
}
