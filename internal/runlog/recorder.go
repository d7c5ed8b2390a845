package runlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/banshee-data/crowd-drive/internal/control"
	"github.com/banshee-data/crowd-drive/internal/monitoring"
)

// Outcomes stored on a finished run.
const (
	OutcomeCompleted = "completed"
	OutcomePathLost  = "path_lost"
	OutcomeSensor    = "sensor_failure"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Outcome classifies the error returned by control.Controller.Run.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, control.ErrPathLost):
		return OutcomePathLost
	case errors.Is(err, control.ErrSensorUnavailable), errors.Is(err, control.ErrPoseStale):
		return OutcomeSensor
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// RunMeta describes a run when it starts.
type RunMeta struct {
	VehicleModel string
	Source       string // "link" or "sim"
	StartedAt    time.Time
}

// Recorder writes tick results for one run. It implements
// control.Observer; ObserveTick never blocks and drops results when the
// writer falls QueueSize behind.
type Recorder struct {
	db    *DB
	runID string
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan control.TickResult
	done   chan struct{}

	written, dropped atomic.Uint64
	reward           float64 // writer goroutine only
	writeErr         error   // writer goroutine only, read after done
}

// QueueSize is the number of tick results buffered ahead of the writer.
const QueueSize = 256

// maxBatch bounds the ticks written per transaction.
const maxBatch = 64

// NewRecorder inserts a run row and starts the background writer.
func NewRecorder(db *DB, meta RunMeta) (*Recorder, error) {
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}
	if meta.Source == "" {
		meta.Source = "link"
	}
	r := &Recorder{
		db:    db,
		runID: uuid.NewString(),
		log:   monitoring.Named("runlog"),
		queue: make(chan control.TickResult, QueueSize),
		done:  make(chan struct{}),
	}
	if _, err := db.Exec(`INSERT INTO runs (run_id, started_at, vehicle_model, source) VALUES (?, ?, ?, ?)`,
		r.runID, meta.StartedAt.UTC(), meta.VehicleModel, meta.Source); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	r.log.Info("run started", zap.String("run_id", r.runID), zap.String("vehicle_model", meta.VehicleModel))
	go r.write()
	return r, nil
}

// RunID returns the run's id.
func (r *Recorder) RunID() string { return r.runID }

// ObserveTick implements control.Observer.
func (r *Recorder) ObserveTick(res control.TickResult) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- res:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of results discarded because the queue was
// full.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Finish flushes queued ticks and stores the outcome of runErr. It is
// safe to call more than once; later calls only return the first error.
func (r *Recorder) Finish(runErr error, at time.Time) error {
	r.mu.Lock()
	already := r.closed
	if !already {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	<-r.done
	if already {
		return r.writeErr
	}

	detail := ""
	if runErr != nil {
		detail = runErr.Error()
	}
	outcome := Outcome(runErr)
	_, err := r.db.Exec(`UPDATE runs SET ended_at = ?, outcome = ?, detail = ?, ticks = ?, total_reward = ? WHERE run_id = ?`,
		at.UTC(), outcome, detail, r.written.Load(), r.reward, r.runID)
	if err != nil {
		err = fmt.Errorf("finish run: %w", err)
	}
	r.log.Info("run finished",
		zap.String("run_id", r.runID),
		zap.String("outcome", outcome),
		zap.Uint64("ticks", r.written.Load()),
		zap.Uint64("dropped", r.dropped.Load()))
	return errors.Join(r.writeErr, err)
}

func (r *Recorder) write() {
	defer close(r.done)
	batch := make([]control.TickResult, 0, maxBatch)
	for res := range r.queue {
		batch = append(batch[:0], res)
	drain:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-r.queue:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		if err := r.insert(batch); err != nil {
			r.log.Error("tick insert failed", zap.Error(err), zap.Int("batch", len(batch)))
			if r.writeErr == nil {
				r.writeErr = err
			}
		}
	}
}

func (r *Recorder) insert(batch []control.TickResult) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO ticks (run_id, tick, ts, mode, published, target_speed,
		steer, speed, x, y, heading, reward, collision_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var reward float64
	for _, res := range batch {
		var agent any
		if res.CollisionAgent >= 0 {
			agent = res.CollisionAgent
		}
		v := res.Vehicle
		if _, err := stmt.Exec(r.runID, res.Tick, res.Time.UTC(), res.Mode.String(), res.Published,
			res.Command.TargetSpeed, res.Command.Steer, v.Speed, v.Pos.X, v.Pos.Y, v.Heading,
			res.Reward, agent); err != nil {
			return fmt.Errorf("tick %d: %w", res.Tick, err)
		}
		reward += res.Reward
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.written.Add(uint64(len(batch)))
	r.reward += reward
	return nil
}
