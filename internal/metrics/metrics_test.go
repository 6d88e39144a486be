package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	rec := NewRecorder()

	rec.PlanCreated(3)
	rec.PlanCreated(7)
	rec.ActionExecuted("completed", 250*time.Millisecond)
	rec.ActionExecuted("completed", 100*time.Millisecond)
	rec.ActionExecuted("failed", 50*time.Millisecond)
	rec.ActionExecuted("skipped", 0)
	rec.RollbackPerformed(true)
	rec.RollbackPerformed(false)
	rec.RollbackPerformed(false)
	rec.ApprovalDecided(true)
	rec.ApprovalDecided(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(rec.plansCreated))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.actionsExecuted.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.actionsExecuted.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.actionsExecuted.WithLabelValues("skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.rollbacks.WithLabelValues("success")))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.rollbacks.WithLabelValues("failure")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.approvals.WithLabelValues("approved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.approvals.WithLabelValues("denied")))
}

func TestRecorderNilSafe(t *testing.T) {
	var rec *Recorder

	assert.NotPanics(t, func() {
		rec.PlanCreated(1)
		rec.ActionExecuted("completed", time.Second)
		rec.RollbackPerformed(true)
		rec.ApprovalDecided(false)
	})

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecorderHandlerServesMetrics(t *testing.T) {
	rec := NewRecorder()
	rec.PlanCreated(5)

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	count, err := testutil.GatherAndCount(rec.registry, "driftguard_plans_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
