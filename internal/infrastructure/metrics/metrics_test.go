package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ShortageRejected("decrement")
	m.ShortageRejected("decrement")
	m.Compensated("transfer.dispatch", 3)
	m.LookupCache(true)
	m.LookupCache(false)
	m.LookupCache(false)
	m.SyncRun("asynq", nil)
	m.SyncRun("asynq", errors.New("down"))
	m.DeadLetter("asynq")

	require.Equal(t, 2.0, testutil.ToFloat64(m.shortages.WithLabelValues("decrement")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.compensations.WithLabelValues("transfer.dispatch")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.compensated.WithLabelValues("transfer.dispatch")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("hit")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.syncRuns.WithLabelValues("asynq", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.deadLetters.WithLabelValues("asynq")))
}
