// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel

package autograde

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/r4u-trace/pkg/tracepipeline/model"
)

type recordingRunner struct {
	mu   sync.Mutex
	jobs []Job
}

func (r *recordingRunner) Run(_ context.Context, job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

func (r *recordingRunner) snapshot() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func TestDispatch_ZeroPercentNeverAdmits(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(runner)
	d.rand = func() float64 { return 0 } // would admit any positive percentage

	d.Dispatch(context.Background(), model.Trace{ID: 1}, model.EvaluationConfig{
		GraderIDs: []int64{1, 2}, TraceEvaluationPercentage: 0,
	})

	time.Sleep(10 * time.Millisecond)
	require.Empty(t, runner.snapshot())
}

func TestDispatch_HundredPercentAlwaysAdmitsAndFansOutPerGrader(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(runner)
	d.rand = func() float64 { return 0.999 } // would reject any percentage under 100

	d.Dispatch(context.Background(), model.Trace{ID: 42}, model.EvaluationConfig{
		GraderIDs: []int64{7, 8, 9}, TraceEvaluationPercentage: 100,
	})

	require.Eventually(t, func() bool {
		return len(runner.snapshot()) == 3
	}, time.Second, time.Millisecond)

	jobs := runner.snapshot()
	seen := map[int64]bool{}
	for _, j := range jobs {
		require.Equal(t, int64(42), j.Trace.ID)
		seen[j.GraderID] = true
	}
	require.True(t, seen[7] && seen[8] && seen[9])
}

func TestDispatch_SamplingGateRespectsDraw(t *testing.T) {
	runner := &recordingRunner{}
	d := NewDispatcher(runner)
	d.rand = func() float64 { return 0.5 }

	// draw 0.5 is below 0.6 -> admitted
	d.Dispatch(context.Background(), model.Trace{ID: 1}, model.EvaluationConfig{
		GraderIDs: []int64{1}, TraceEvaluationPercentage: 60,
	})
	require.Eventually(t, func() bool { return len(runner.snapshot()) == 1 }, time.Second, time.Millisecond)

	// draw 0.5 is not below 0.4 -> rejected
	d.Dispatch(context.Background(), model.Trace{ID: 2}, model.EvaluationConfig{
		GraderIDs: []int64{1}, TraceEvaluationPercentage: 40,
	})
	time.Sleep(10 * time.Millisecond)
	require.Len(t, runner.snapshot(), 1)
}
