package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	phase Phase
	name  string
	log   *[]string
}

func (r recorder) Phase() Phase           { return r.phase }
func (r recorder) Update(_ time.Duration) { *r.log = append(*r.log, r.name) }

type phaseLog []string

func (p *phaseLog) ObservePhase(phase string, d time.Duration) { *p = append(*p, phase) }

func TestRunnerOrdersByPhase(t *testing.T) {
	var log []string
	run := NewRunner()
	run.Register(recorder{PhaseOutput, "output", &log})
	run.Register(recorder{PhaseInput, "input", &log})
	run.Register(recorder{PhasePostUpdate, "dispatch", &log})
	run.Register(recorder{PhasePreUpdate, "entropy", &log})

	run.Tick(time.Millisecond)
	assert.Equal(t, []string{"input", "entropy", "dispatch", "output"}, log)
}

func TestRunnerReportsEachPhaseOnce(t *testing.T) {
	var log []string
	var phases phaseLog
	run := NewRunner()
	run.Observe(&phases)
	run.Register(recorder{PhaseOutput, "flush", &log})
	run.Register(recorder{PhaseInput, "accept", &log})
	run.Register(recorder{PhaseInput, "drain", &log})

	run.Tick(time.Millisecond)
	assert.Equal(t, []string{"accept", "drain", "flush"}, log)
	assert.Equal(t, phaseLog{"input", "output"}, phases)
}
