package database

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolCollector_DescribesEveryMetric(t *testing.T) {
	c := NewPoolCollector(nil, "siterank")

	ch := make(chan *prometheus.Desc, len(c.metrics))
	c.Describe(ch)
	close(ch)

	var names []string
	for d := range ch {
		names = append(names, d.String())
	}
	require.Len(t, names, len(c.metrics))
	assert.Contains(t, names[0], "db_pool_acquired_connections")
}

func TestRegisterPoolMetrics_RejectsDuplicate(t *testing.T) {
	reg := prometheus.NewRegistry()

	require.NoError(t, RegisterPoolMetrics(reg, nil, "siterank"))
	assert.Error(t, RegisterPoolMetrics(reg, nil, "siterank"))
}
