package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/MarketFox/internal/pkg/cache"
	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
)

// Redis layout of the event queue
const (
	TaskKeyPrefix = "events:task:"
	PendingKey    = "events:pending"
	InflightKey   = "events:inflight"
	DelayedKey    = "events:delayed"
	TotalsKey     = "events:totals"
)

const (
	DefaultMaxAttempts = 4
	TaskTTL            = 24 * time.Hour

	defaultWorkers    = 3
	defaultBackoff    = 30 * time.Second
	claimWait         = time.Second
	claimGrace        = 30 * time.Second
	promoteInterval   = time.Second
	staleAfter        = 10 * time.Minute
	staleScanInterval = time.Minute
)

var errNoHandler = errors.New("no event handler registered")

// EventHandler consumes a decoded domain event. *events.Dispatcher satisfies it.
type EventHandler interface {
	Handle(ctx context.Context, ev events.Event) error
}

// Queue delivers domain events to an EventHandler through Redis. Pending
// task ids live in a list, claimed ones in an inflight list, and failed ones
// wait in a sorted set scored by their next attempt time.
type Queue struct {
	client  *redis.Client
	workers int

	mu      sync.Mutex
	handler EventHandler
	backoff time.Duration
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// inflight ids found without a recorded attempt, by first sighting.
	// Only the maintenance loop touches it.
	unstarted map[string]time.Time
}

// NewQueue creates a queue. A nil client falls back to the shared cache client.
func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if client == nil {
		client = cache.GetClient()
	}
	return &Queue{
		client:  client,
		workers: workers,
		backoff: defaultBackoff,
		stopCh:  make(chan struct{}),
	}
}

// SetHandler sets the consumer of dequeued events.
func (q *Queue) SetHandler(h EventHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
}

// SetBackoff changes the delay before the first retry. Non-positive values are ignored.
func (q *Queue) SetBackoff(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if d > 0 {
		q.backoff = d
	}
}

// Enqueue stores ev and appends it to the pending list.
func (q *Queue) Enqueue(ctx context.Context, ev events.Event) (*Task, error) {
	task, err := NewTask(ev, time.Now())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", task.ID, err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, TaskKeyPrefix+task.ID, data, TaskTTL)
	pipe.LPush(ctx, PendingKey, task.ID)
	pipe.HIncrBy(ctx, TotalsKey, string(TaskQueued), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue event %s: %w", ev.ID, err)
	}
	log.Debugf("[JobQueue] Queued event %s (%s)", ev.ID, ev.Type)
	return task, nil
}

// Start launches the workers and the maintenance loop.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i, q.stopCh)
	}
	q.wg.Add(1)
	go q.maintain(q.stopCh)
}

// Stop signals all loops and waits for in-flight tasks to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] Workers stopped")
}

// IsRunning reports whether workers are active.
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) work(id int, stopCh <-chan struct{}) {
	defer q.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		task, err := q.claim(ctx, claimWait)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Worker %d: claim failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		q.run(ctx, task)
	}
}

// maintain promotes due retries and recovers tasks abandoned by dead workers.
func (q *Queue) maintain(stopCh <-chan struct{}) {
	defer q.wg.Done()
	promote := time.NewTicker(promoteInterval)
	defer promote.Stop()
	scan := time.NewTicker(staleScanInterval)
	defer scan.Stop()

	ctx := context.Background()
	for {
		select {
		case <-stopCh:
			return
		case now := <-promote.C:
			q.promoteDue(ctx, now)
		case now := <-scan.C:
			q.recoverStale(ctx, staleAfter, now)
		}
	}
}

// claim moves the oldest pending id to the inflight list and loads its task.
func (q *Queue) claim(ctx context.Context, wait time.Duration) (*Task, error) {
	id, err := q.client.BLMove(ctx, PendingKey, InflightKey, "RIGHT", "LEFT", wait).Result()
	if err != nil {
		return nil, err
	}
	task, err := q.Task(ctx, id)
	if err != nil {
		q.client.LRem(ctx, InflightKey, 1, id)
		return nil, fmt.Errorf("load claimed task %s: %w", id, err)
	}
	return task, nil
}

func (q *Queue) dispatch(ctx context.Context, task *Task) (err error) {
	q.mu.Lock()
	h := q.handler
	q.mu.Unlock()
	if h == nil {
		return errNoHandler
	}
	ev, err := task.DecodeEvent()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("event handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, ev)
}

// run executes one attempt and files the task under its outcome.
func (q *Queue) run(ctx context.Context, task *Task) {
	task.begin(time.Now())
	q.save(ctx, task)

	err := q.dispatch(ctx, task)
	now := time.Now()

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, InflightKey, 1, task.ID)
	switch {
	case err == nil:
		pipe.Del(ctx, TaskKeyPrefix+task.ID)
		pipe.HIncrBy(ctx, TotalsKey, string(TaskDone), 1)
		log.Debugf("[JobQueue] Event %s delivered", task.EventID)
	default:
		task.fail(now, err)
		data, merr := json.Marshal(task)
		if merr != nil {
			log.Errorf("[JobQueue] Encode task %s: %v", task.ID, merr)
			break
		}
		pipe.Set(ctx, TaskKeyPrefix+task.ID, data, TaskTTL)
		if task.Status == TaskRetrying {
			q.mu.Lock()
			delay := retryDelay(q.backoff, task.Attempts)
			q.mu.Unlock()
			pipe.ZAdd(ctx, DelayedKey, redis.Z{Score: float64(now.Add(delay).UnixMilli()), Member: task.ID})
			pipe.HIncrBy(ctx, TotalsKey, string(TaskRetrying), 1)
			log.Warnf("[JobQueue] Event %s attempt %d/%d failed, retry in %s: %v",
				task.EventID, task.Attempts, task.MaxAttempts, delay, err)
		} else {
			pipe.HIncrBy(ctx, TotalsKey, string(TaskFailed), 1)
			log.Errorf("[JobQueue] Event %s (%s) gave up after %d attempts: %v",
				task.EventID, task.EventType, task.Attempts, err)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[JobQueue] Filing task %s failed: %v", task.ID, err)
	}
}

// promoteDue moves retries whose time has come back to the pending list.
// ZRem decides ownership, so concurrent promoters never double-queue a task.
func (q *Queue) promoteDue(ctx context.Context, now time.Time) int {
	ids, err := q.client.ZRangeByScore(ctx, DelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		log.Errorf("[JobQueue] Reading delayed tasks failed: %v", err)
		return 0
	}
	promoted := 0
	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, DelayedKey, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, PendingKey, id).Err(); err != nil {
			log.Errorf("[JobQueue] Requeue of task %s failed: %v", id, err)
			continue
		}
		promoted++
	}
	return promoted
}

// recoverStale requeues inflight tasks running longer than maxAge, and claimed
// tasks still unstarted after claimGrace. Ids whose task is gone are dropped.
func (q *Queue) recoverStale(ctx context.Context, maxAge time.Duration, now time.Time) int {
	ids, err := q.client.LRange(ctx, InflightKey, 0, -1).Result()
	if err != nil {
		log.Errorf("[JobQueue] Reading inflight tasks failed: %v", err)
		return 0
	}
	recovered := 0
	unstarted := make(map[string]time.Time)
	for _, id := range ids {
		task, err := q.Task(ctx, id)
		if errors.Is(err, redis.Nil) {
			q.client.LRem(ctx, InflightKey, 1, id)
			continue
		}
		if err != nil {
			log.Errorf("[JobQueue] Loading inflight task %s failed: %v", id, err)
			continue
		}
		var age time.Duration
		switch task.Status {
		case TaskRunning:
			age = now.Sub(task.runningSince())
			if age <= maxAge {
				continue
			}
		case TaskQueued, TaskRetrying:
			// Claimed, but the worker has not saved its attempt yet.
			seen, ok := q.unstarted[id]
			if !ok {
				seen = now
			}
			age = now.Sub(seen)
			if age <= claimGrace {
				unstarted[id] = seen
				continue
			}
		default:
			q.client.LRem(ctx, InflightKey, 1, id)
			continue
		}
		log.Warnf("[JobQueue] Recovering event %s stuck for %s", task.EventID, age.Round(time.Second))
		task.requeue(now, "recovered after worker loss")
		q.save(ctx, task)
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, InflightKey, 1, id)
		pipe.RPush(ctx, PendingKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Errorf("[JobQueue] Recovering task %s failed: %v", id, err)
			continue
		}
		recovered++
	}
	q.unstarted = unstarted
	return recovered
}

func (q *Queue) save(ctx context.Context, task *Task) {
	data, err := json.Marshal(task)
	if err != nil {
		log.Errorf("[JobQueue] Encode task %s: %v", task.ID, err)
		return
	}
	if err := q.client.Set(ctx, TaskKeyPrefix+task.ID, data, TaskTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Saving task %s failed: %v", task.ID, err)
	}
}

// Task loads a stored task. Delivered tasks are deleted and return redis.Nil.
func (q *Queue) Task(ctx context.Context, id string) (*Task, error) {
	data, err := q.client.Get(ctx, TaskKeyPrefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}

// Backlog counts pending, inflight and delayed tasks.
type Backlog struct {
	Pending  int64 `json:"pending"`
	Inflight int64 `json:"inflight"`
	Delayed  int64 `json:"delayed"`
}

// Backlog reads the current queue depth.
func (q *Queue) Backlog(ctx context.Context) (Backlog, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, PendingKey)
	inflight := pipe.LLen(ctx, InflightKey)
	delayed := pipe.ZCard(ctx, DelayedKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Backlog{}, err
	}
	return Backlog{Pending: pending.Val(), Inflight: inflight.Val(), Delayed: delayed.Val()}, nil
}

// Totals returns how many tasks reached each status since the counters began.
func (q *Queue) Totals(ctx context.Context) (map[TaskStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, TotalsKey).Result()
	if err != nil {
		return nil, err
	}
	totals := make(map[TaskStatus]int64, len(raw))
	for status, v := range raw {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			totals[TaskStatus(status)] = n
		}
	}
	return totals, nil
}
