package gopsync

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// RunStore keeps the latest progress snapshot per run id so a web
// caller can poll while the run itself stays fire-and-forget. The
// in-memory implementation is enough for a single process; a
// multi-process deployment can swap in a shared store.
type RunStore interface {
	Get(runID string) (Progress, bool)
	Set(runID string, p Progress)
}

type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]Progress
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: map[string]Progress{}}
}

func (s *MemoryRunStore) Get(runID string) (Progress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.runs[runID]
	return p, ok
}

func (s *MemoryRunStore) Set(runID string, p Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[runID] = p
}

// Runner serializes sync runs on a single worker. Two concurrent runs
// would fight over the same portal session model and the same pending
// case set, so a trigger while one is active returns the active run
// instead of starting another.
type Runner struct {
	service *Service
	runs    RunStore

	jobs chan string

	mu     sync.Mutex
	active string
}

func NewRunner(service *Service, runs RunStore) *Runner {
	return &Runner{
		service: service,
		runs:    runs,
		jobs:    make(chan string, 1),
	}
}

func (r *Runner) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case runID := <-r.jobs:
				r.execute(ctx, runID)
			}
		}
	}()
}

// Trigger queues a run and returns its id. started is false when an
// active run was returned instead of a new one.
func (r *Runner) Trigger() (runID string, started bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != "" {
		return r.active, false
	}

	runID = uuid.NewString()
	r.active = runID
	r.runs.Set(runID, Progress{Status: StatusQueued, Message: "sync run queued"})
	r.jobs <- runID
	return runID, true
}

func (r *Runner) execute(ctx context.Context, runID string) {
	defer func() {
		r.mu.Lock()
		r.active = ""
		r.mu.Unlock()
	}()

	stats, err := r.service.RunSync(ctx, func(p Progress) {
		r.runs.Set(runID, p)
	})

	final, _ := r.runs.Get(runID)
	if err != nil {
		final.Status = StatusFailed
		final.Message = err.Error()
	} else {
		final.Status = StatusDone
		final.Message = fmt.Sprintf(
			"actualizados %d, no encontrados %d, errores %d",
			stats.ExpedientesActualizados,
			stats.ExpedientesNoEncontrados,
			len(stats.Errores),
		)
	}
	r.runs.Set(runID, final)
}
