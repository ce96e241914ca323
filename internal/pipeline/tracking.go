package pipeline

import (
	"context"
	"sync"
	"time"
)

// RunProgress is a point-in-time view of a running fetch-aggregate
type RunProgress struct {
	RunID     string        `json:"run_id"`
	Status    string        `json:"status"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	StartTime time.Time     `json:"start_time"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RunTracker follows one run: its progress counter and the cancel func of its context
type RunTracker struct {
	runID  string
	cancel context.CancelFunc

	mu        sync.RWMutex
	status    string
	completed int
	total     int
	startTime time.Time
}

// NewRunTracker derives a cancellable context for runID
func NewRunTracker(ctx context.Context, runID string) (*RunTracker, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &RunTracker{
		runID:     runID,
		cancel:    cancel,
		status:    "initializing",
		startTime: time.Now(),
	}, ctx
}

// Progress is a ProgressFunc recording the completed count
func (rt *RunTracker) Progress(completed, total int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if completed > rt.completed {
		rt.completed = completed
	}
	rt.total = total
}

// SetStatus records the run status
func (rt *RunTracker) SetStatus(status string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.status = status
}

// Cancel stops the run; outstanding requests are abandoned
func (rt *RunTracker) Cancel() {
	rt.cancel()
}

// Snapshot returns the current progress
func (rt *RunTracker) Snapshot() RunProgress {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return RunProgress{
		RunID:     rt.runID,
		Status:    rt.status,
		Completed: rt.completed,
		Total:     rt.total,
		StartTime: rt.startTime,
		Elapsed:   time.Since(rt.startTime),
	}
}

// Registry holds the trackers of runs still in progress
type Registry struct {
	mu       sync.RWMutex
	trackers map[string]*RunTracker
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{trackers: make(map[string]*RunTracker)}
}

func (r *Registry) Add(rt *RunTracker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trackers[rt.runID] = rt
}

func (r *Registry) Remove(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trackers, runID)
}

func (r *Registry) Get(runID string) (*RunTracker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.trackers[runID]
	return rt, ok
}

// CancelAll cancels every tracked run, used on shutdown
func (r *Registry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.trackers {
		rt.Cancel()
	}
}
