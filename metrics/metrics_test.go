package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDispatch(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordDispatch("openai", "gpt-4o", "chat", nil, 200*time.Millisecond)
	c.RecordDispatch("openai", "gpt-4o", "chat", errors.New("boom"), time.Second)
	c.RecordDispatch("openai", "gpt-4o", "chat", nil, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.dispatchTotal.WithLabelValues("openai", "gpt-4o", "chat", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatchTotal.WithLabelValues("openai", "gpt-4o", "chat", StatusError)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.dispatchDuration))
}

func TestRecordTokensSkipsZero(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordTokens("anthropic", "claude", 10, 0)
	c.RecordTokens("anthropic", "claude", 5, 7)

	assert.Equal(t, 15.0, testutil.ToFloat64(c.tokensTotal.WithLabelValues("anthropic", "claude", "input")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.tokensTotal.WithLabelValues("anthropic", "claude", "output")))
}

func TestStepsRunsAndCandidates(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.RecordStep("abc", StatusOK)
	c.RecordStep("abc", StatusSkipped)
	c.RecordRun("abc", "completed")
	c.RecordCandidate("x", nil)
	c.RecordCandidate("y", errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.stepsTotal.WithLabelValues("abc", StatusSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("abc", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.candidatesTotal.WithLabelValues("y", StatusError)))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordDispatch("a", "b", "chat", nil, time.Second)
		c.RecordTokens("a", "b", 1, 1)
		c.RecordStep("c", StatusOK)
		c.RecordRun("c", "failed")
		c.RecordCandidate("t", nil)
	})
}
