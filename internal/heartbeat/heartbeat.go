// Package heartbeat posts periodic worker-liveness JSON blobs to Redis so an
// external monitor can detect a wedged ingestion worker, adapted from
// internal/services/worker_monitor/worker_monitor.go's WorkerHeartbeat shape
// — that package's dead-worker *recovery* side has no equivalent here since
// a stuck file is a lineage-log row, not a requeueable task.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const keyPrefix = "ingest_worker_heartbeat:"

// Heartbeat represents one worker's liveness snapshot, matching the shape
// worker_monitor.WorkerHeartbeat uses, minus the queue-stats field that has
// no analogue for a filename-driven pool.
type Heartbeat struct {
	WorkerID      string  `json:"worker_id"`
	Status        string  `json:"status"`
	Timestamp     string  `json:"timestamp"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ActiveFile    *string `json:"active_file"`
}

// Reporter publishes Heartbeat values for one worker on a fixed interval
// until Stop is called.
type Reporter struct {
	client   *redis.Client
	workerID string
	interval time.Duration
	ttl      time.Duration
	started  time.Time
	log      *zap.Logger

	mu     sync.Mutex
	active *string

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewReporter builds a Reporter for one worker slot. interval <= 0 defaults
// to 5 seconds, mirroring the teacher's checkInterval.
func NewReporter(client *redis.Client, workerID string, interval time.Duration, log *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Reporter{
		client:   client,
		workerID: workerID,
		interval: interval,
		ttl:      interval * 3,
		started:  time.Now(),
		log:      log,
		stop:     make(chan struct{}),
	}
}

// SetActiveFile records the filename currently being processed by this
// worker, surfaced in the next published heartbeat. Pass "" when idle.
func (r *Reporter) SetActiveFile(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if filename == "" {
		r.active = nil
		return
	}
	f := filename
	r.active = &f
}

// Start begins publishing heartbeats in a background goroutine.
func (r *Reporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		r.publish(ctx)
		for {
			select {
			case <-ticker.C:
				r.publish(ctx)
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts publishing and removes this worker's key from Redis.
func (r *Reporter) Stop(ctx context.Context) {
	close(r.stop)
	r.wg.Wait()
	r.client.Del(ctx, keyPrefix+r.workerID)
}

func (r *Reporter) publish(ctx context.Context) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()

	hb := Heartbeat{
		WorkerID:      r.workerID,
		Status:        "running",
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: time.Since(r.started).Seconds(),
		ActiveFile:    active,
	}
	body, err := json.Marshal(hb)
	if err != nil {
		r.log.Warn("failed to marshal heartbeat", zap.Error(err))
		return
	}
	key := keyPrefix + r.workerID
	if err := r.client.Set(ctx, key, string(body), r.ttl).Err(); err != nil {
		r.log.Warn("failed to publish heartbeat", zap.String("worker_id", r.workerID), zap.Error(err))
	}
}

// Active lists workers with a live heartbeat key.
func Active(ctx context.Context, client *redis.Client) ([]Heartbeat, error) {
	keys, err := client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeat keys: %w", err)
	}
	out := make([]Heartbeat, 0, len(keys))
	for _, key := range keys {
		val, err := client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var hb Heartbeat
		if err := json.Unmarshal([]byte(val), &hb); err != nil {
			continue
		}
		out = append(out, hb)
	}
	return out, nil
}
