package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// These cases cover the pure invocation-budget bookkeeping (exhausted()) and
// the dead-flag check (unusable()) in worker without exec'ing a real
// scriptworker subprocess, which neither method touches.

func TestWorker_NotExhaustedBelowBudget(t *testing.T) {
	w := &worker{maxInvocations: 3, invocations: 2}
	assert.False(t, w.exhausted())
}

func TestWorker_ExhaustedAtBudget(t *testing.T) {
	w := &worker{maxInvocations: 3, invocations: 3}
	assert.True(t, w.exhausted())
}

func TestWorker_ExhaustedPastBudget(t *testing.T) {
	w := &worker{maxInvocations: 3, invocations: 5}
	assert.True(t, w.exhausted())
}

func TestWorker_ZeroMaxInvocationsIsImmediatelyExhausted(t *testing.T) {
	w := &worker{maxInvocations: 0, invocations: 0}
	assert.True(t, w.exhausted())
}

func TestWorker_FreshWorkerIsNotUnusable(t *testing.T) {
	w := &worker{maxInvocations: 3}
	assert.False(t, w.unusable())
}

func TestWorker_DeadWorkerIsUnusable(t *testing.T) {
	w := &worker{maxInvocations: 3, dead: true}
	assert.True(t, w.unusable())
}
