package noderunner

import (
	"context"
	"math/rand"

	"github.com/flowkit-run/flowkit/internal/flowtypes"
)

// Scheduler picks one NPU per dispatch. spec.md §4.4 states the documented
// intent as "least queued tasks" while the original implementation used
// random choice; per spec.md §9's design note, this implementation follows
// the stated intent: least QueuedTasks, with a random tie-break among NPUs
// sharing the minimum.
type Scheduler struct {
	session *Session
}

// NewScheduler builds a Scheduler over the given NPU session registry.
func NewScheduler(session *Session) *Scheduler {
	return &Scheduler{session: session}
}

// GetNextNpu returns the least-loaded live NPU, or ErrNoNpuAvailable if the
// pool is empty.
func (s *Scheduler) GetNextNpu(ctx context.Context) (flowtypes.NpuStatus, error) {
	all, err := s.session.GetAll(ctx)
	if err != nil {
		return flowtypes.NpuStatus{}, err
	}
	if len(all) == 0 {
		return flowtypes.NpuStatus{}, ErrNoNpuAvailable
	}

	var candidates []flowtypes.NpuStatus
	min := int64(-1)
	for _, npu := range all {
		switch {
		case min < 0 || npu.Metrics.QueuedTasks < min:
			min = npu.Metrics.QueuedTasks
			candidates = candidates[:0]
			candidates = append(candidates, npu)
		case npu.Metrics.QueuedTasks == min:
			candidates = append(candidates, npu)
		}
	}

	return candidates[rand.Intn(len(candidates))], nil
}
