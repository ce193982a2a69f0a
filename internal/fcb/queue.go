package fcb

import (
	"context"
	"sync"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
	"github.com/flowkit-run/flowkit/internal/obslog"
	"github.com/google/uuid"
)

// Store is the durable backing of the FCB queue: one document per flow,
// keyed by flow_id. Implementations live in internal/fcb/store.
type Store interface {
	Save(ctx context.Context, flowID string, state flowtypes.FlowState) error
	Load(ctx context.Context, flowID string) (flowtypes.FlowState, error)
	LoadAll(ctx context.Context) ([]flowtypes.FlowState, error)
	Delete(ctx context.Context, flowID string) error
}

// Queue is the registry of live FCBs plus their durable backing store. It
// owns the bounded worker pool that runs FCB steps: steps of different FCBs
// run in parallel, steps of the same FCB are strictly sequential because a
// step only ever submits the next step of its own FCB.
//
// The pool is grounded on the teacher's Frontier (graph/scheduler.go):
// bounded capacity backed by a buffered channel, generalized here from
// "work items within one run" to "one step submission per FCB, across every
// FCB this Queue owns".
type Queue struct {
	mu    sync.RWMutex
	fcbs  map[string]*FCB
	store Store

	dispatcher Dispatcher
	tracer     Tracer
	emitter    obslog.Emitter

	tokens chan struct{}
	wg     sync.WaitGroup
}

// NewQueue builds a Queue with a worker pool of the given size (spec.md
// §4.2 default: 20).
func NewQueue(store Store, dispatcher Dispatcher, tracer Tracer, emitter obslog.Emitter, poolSize int) *Queue {
	if poolSize <= 0 {
		poolSize = 20
	}
	return &Queue{
		fcbs:       make(map[string]*FCB),
		store:      store,
		dispatcher: dispatcher,
		tracer:     tracer,
		emitter:    emitter,
		tokens:     make(chan struct{}, poolSize),
	}
}

// Add constructs an FCB for the given flow, registers it, persists its
// initial state, and returns its freshly assigned flow_id. It does not
// start the flow; callers invoke Start separately (the executor's HTTP
// handler for /fcb/add does both).
func (q *Queue) Add(ctx context.Context, flow flowtypes.Flow) (string, error) {
	flowID := uuid.NewString()
	f := q.register(flowID, flow)

	state := f.GetSaveState()
	if err := q.store.Save(ctx, flowID, state); err != nil {
		return "", err
	}
	return flowID, nil
}

func (q *Queue) register(flowID string, flow flowtypes.Flow) *FCB {
	f := New(flowID, flow, q.dispatcher, q.tracer, q.checkpointFunc(), q.stopFunc(), q.emitter)
	f.setSubmit(q.submit)

	q.mu.Lock()
	q.fcbs[flowID] = f
	q.mu.Unlock()
	return f
}

func (q *Queue) checkpointFunc() CheckpointFunc {
	return func(ctx context.Context, flowID string, state flowtypes.FlowState) error {
		return q.store.Save(ctx, flowID, state)
	}
}

func (q *Queue) stopFunc() StopFunc {
	return func(ctx context.Context, flowID string) error {
		q.mu.Lock()
		delete(q.fcbs, flowID)
		q.mu.Unlock()
		return q.store.Delete(ctx, flowID)
	}
}

// submit schedules one step of f on the worker pool. Acquiring a token is
// itself non-blocking from the caller's perspective: it spawns a goroutine
// that waits for a free slot, so submitStep (called from inside a step)
// never deadlocks the pool.
func (q *Queue) submit(f *FCB) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.tokens <- struct{}{}
		defer func() { <-q.tokens }()
		f.Step(context.Background())
	}()
}

// Start transitions the named FCB to running.
func (q *Queue) Start(ctx context.Context, flowID string) error {
	f, ok := q.get(flowID)
	if !ok {
		return ErrUnknownFlow
	}
	f.Start(ctx)
	return nil
}

// Pause pauses the named FCB.
func (q *Queue) Pause(flowID string) error {
	f, ok := q.get(flowID)
	if !ok {
		return ErrUnknownFlow
	}
	f.Pause()
	return nil
}

// Resume resumes the named FCB.
func (q *Queue) Resume(ctx context.Context, flowID string) error {
	f, ok := q.get(flowID)
	if !ok {
		return ErrUnknownFlow
	}
	f.Resume(ctx)
	return nil
}

// Stop force-stops the named FCB and deletes its durable document.
func (q *Queue) Stop(ctx context.Context, flowID string) error {
	f, ok := q.get(flowID)
	if !ok {
		return ErrUnknownFlow
	}
	f.Stop(ctx)
	return nil
}

func (q *Queue) get(flowID string) (*FCB, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	f, ok := q.fcbs[flowID]
	return f, ok
}

// RecoverFromStorage reconstructs an FCB for every persisted flow document,
// registers it with status QUEUED, and starts it. Per-document failures are
// logged and skipped; they do not abort the rest of recovery (spec.md
// §4.2).
func (q *Queue) RecoverFromStorage(ctx context.Context) error {
	states, err := q.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, state := range states {
		func(state flowtypes.FlowState) {
			defer func() {
				if r := recover(); r != nil {
					q.emit(obslog.Event{FlowID: state.FlowID, Msg: "recovery_panic_skipped", Meta: map[string]interface{}{"error": r}})
				}
			}()
			f := LoadFromSaveState(state, q.dispatcher, q.tracer, q.checkpointFunc(), q.stopFunc(), q.emitter)
			f.setSubmit(q.submit)
			q.mu.Lock()
			q.fcbs[state.FlowID] = f
			q.mu.Unlock()
			f.Start(ctx)
		}(state)
	}
	return nil
}

// CleanUp waits for all in-flight steps to finish. Used during graceful
// shutdown.
func (q *Queue) CleanUp() {
	q.wg.Wait()
}

func (q *Queue) emit(event obslog.Event) {
	if q.emitter != nil {
		q.emitter.Emit(event)
	}
}
