package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	d, err := NewDispatch(reg)
	require.NoError(t, err)

	d.RecordDispatch("hostinger", "legalvala", "sent", 120*time.Millisecond)
	d.RecordDispatch("hostinger", "legalvala", "sent", 80*time.Millisecond)
	d.RecordDispatch("gmail", "default", "failed", time.Second)
	d.SetIdentities(7)
	d.RecordRateLimited("/api/email/send-email/{provider}")

	assert.Equal(t, 2.0, testutil.ToFloat64(d.total.WithLabelValues("hostinger", "legalvala", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.total.WithLabelValues("gmail", "default", "failed")))
	assert.Equal(t, 7.0, testutil.ToFloat64(d.identities))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.rateLimits.WithLabelValues("/api/email/send-email/{provider}")))
	assert.Equal(t, 2, testutil.CollectAndCount(d.duration))
}

func TestNewDispatch_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewDispatch(reg)
	require.NoError(t, err)
	second, err := NewDispatch(reg)
	require.NoError(t, err)

	first.RecordDispatch("p", "b", "sent", time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.total.WithLabelValues("p", "b", "sent")))
}
