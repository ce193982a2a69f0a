package obslog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingEmitter struct {
	events []Event
}

func (r *recordingEmitter) Emit(e Event) { r.events = append(r.events, e) }
func (r *recordingEmitter) Flush(_ context.Context) error { return nil }

func TestMultiEmitter_FansOutToEveryEmitter(t *testing.T) {
	a, b := &recordingEmitter{}, &recordingEmitter{}
	m := NewMultiEmitter(a, b)

	m.Emit(Event{FlowID: "f1", Msg: "step_start"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Equal(t, "step_start", a.events[0].Msg)
}
