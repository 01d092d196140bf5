package controllers

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/MarketFox/internal/pkg/jobqueue"
	metrics "github.com/ManuelReschke/MarketFox/internal/pkg/metrics/counter"
)

// ============================================================================
// ADMIN QUEUE + FAN-OUT MONITOR
// ============================================================================

const maxListedTasks = 100

// QueueTaskKey is one stored task key with its remaining lifetime.
type QueueTaskKey struct {
	Key    string        `json:"key"`
	TaskID string        `json:"task_id"`
	TTL    time.Duration `json:"ttl_ns"`
}

// QueueStats is the admin view of the event dispatch queue.
type QueueStats struct {
	Pending   int64            `json:"pending"`
	Inflight  int64            `json:"inflight"`
	Delayed   int64            `json:"delayed"`
	Totals    map[string]int64 `json:"totals"`
	TaskKeys  []QueueTaskKey   `json:"task_keys"`
	Truncated bool             `json:"truncated"`
}

// HandleAdminFanoutStats reports per event type and step how often the
// fan-out succeeded and failed. ?drain=true resets the counters after reading.
func (mc *MarketController) HandleAdminFanoutStats(c *fiber.Ctx) error {
	if mc.counter == nil {
		return unavailable(c, "Fan-out counters")
	}
	var (
		stats []metrics.StepStats
		err   error
	)
	if c.QueryBool("drain", false) {
		stats, err = mc.counter.Drain(c.UserContext())
	} else {
		stats, err = mc.counter.Snapshot(c.UserContext())
	}
	if err != nil {
		return respondError(c, err)
	}

	var ok, failed int64
	for _, s := range stats {
		ok += s.OK
		failed += s.Failed
	}
	return c.JSON(fiber.Map{"steps": stats, "ok": ok, "failed": failed})
}

// HandleAdminQueueStats reads the dispatch queue state from Redis using the
// queue repository.
func (mc *MarketController) HandleAdminQueueStats(c *fiber.Ctx) error {
	stats, err := mc.queueStats(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stats)
}

func (mc *MarketController) queueStats(c *fiber.Ctx) (*QueueStats, error) {
	ctx := c.UserContext()
	repo := mc.repos.Queue

	pending, err := repo.GetListLength(ctx, jobqueue.PendingKey)
	if err != nil {
		return nil, err
	}
	inflight, err := repo.GetListLength(ctx, jobqueue.InflightKey)
	if err != nil {
		return nil, err
	}
	delayed, err := repo.GetSortedSetSize(ctx, jobqueue.DelayedKey)
	if err != nil {
		return nil, err
	}
	raw, err := repo.GetHash(ctx, jobqueue.TotalsKey)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]int64, len(raw))
	for status, v := range raw {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			continue
		}
		totals[status] = n
	}

	keys, err := repo.FindKeysByPatterns(ctx, []string{jobqueue.TaskKeyPrefix + "*"})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	stats := &QueueStats{Pending: pending, Inflight: inflight, Delayed: delayed, Totals: totals, TaskKeys: []QueueTaskKey{}}
	if len(keys) > maxListedTasks {
		keys = keys[:maxListedTasks]
		stats.Truncated = true
	}
	for _, key := range keys {
		ttl, err := repo.GetTTL(ctx, key)
		if err != nil {
			// delivered between scan and lookup
			ttl = -1
		}
		stats.TaskKeys = append(stats.TaskKeys, QueueTaskKey{
			Key:    key,
			TaskID: strings.TrimPrefix(key, jobqueue.TaskKeyPrefix),
			TTL:    ttl,
		})
	}
	return stats, nil
}
