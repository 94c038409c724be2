package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.ObserveOperation("contribute", "ok")
	c.ObserveOperation("contribute", "ok")
	c.ObserveOperation("refund", "rejected")
	c.ObserveSettlement("withdraw", "success")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("contribute", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operations.WithLabelValues("refund", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.settlements.WithLabelValues("withdraw", "success")))

	_, err = New(reg)
	assert.Error(t, err, "duplicate registration")
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveOperation("withdraw", "ok")
		c.ObserveSettlement("refund", "failed")
	})
}
