package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/MarketFox/internal/pkg/env"
	metrics "github.com/ManuelReschke/MarketFox/internal/pkg/metrics/counter"
)

const defaultReportInterval = 5 * time.Minute

// Manager owns the process wide event queue, the fan-out counters that share
// its Redis connection, and a periodic health report.
type Manager struct {
	queue          *Queue
	counter        *metrics.FanoutCounter
	reportInterval time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager sizes the worker pool from EVENT_QUEUE_WORKERS.
func NewManager(client *redis.Client) *Manager {
	q := NewQueue(client, env.GetEnvInt("EVENT_QUEUE_WORKERS", defaultWorkers))
	return &Manager{
		queue:          q,
		counter:        metrics.NewFanoutCounter(q.client),
		reportInterval: defaultReportInterval,
	}
}

// GetManager returns the shared manager on the cache client.
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(nil)
	})
	return globalManager
}

func (m *Manager) Queue() *Queue {
	return m.queue
}

func (m *Manager) Counter() *metrics.FanoutCounter {
	return m.counter
}

func (m *Manager) Publisher() *EventPublisher {
	return NewEventPublisher(m.queue)
}

// RegisterDispatcher makes h the consumer of queued events.
func (m *Manager) RegisterDispatcher(h EventHandler) {
	m.queue.SetHandler(h)
}

func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})

	m.queue.Start()
	m.wg.Add(1)
	go m.reportLoop(m.stopCh)
	log.Info("[JobQueue Manager] Started")
}

func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.running = false
	m.mu.Unlock()

	m.wg.Wait()
	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped")
}

func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) reportLoop(stopCh <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.report(context.Background())
		}
	}
}

// report logs the backlog and every fan-out step that has failed.
func (m *Manager) report(ctx context.Context) {
	backlog, err := m.queue.Backlog(ctx)
	if err != nil {
		log.Errorf("[JobQueue Manager] Reading backlog failed: %v", err)
		return
	}
	log.Infof("[JobQueue Manager] Backlog: pending=%d inflight=%d delayed=%d",
		backlog.Pending, backlog.Inflight, backlog.Delayed)

	stats, err := m.counter.Snapshot(ctx)
	if err != nil {
		log.Errorf("[JobQueue Manager] Reading fan-out counters failed: %v", err)
		return
	}
	for _, s := range stats {
		if s.Failed > 0 {
			log.Warnf("[JobQueue Manager] Fan-out step %s/%s failed %d times (ok=%d)", s.EventType, s.Step, s.Failed, s.OK)
		}
	}
}
