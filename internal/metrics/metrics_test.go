package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRegistryIsIdempotent(t *testing.T) {
	first := InitRegistry()
	second := InitRegistry()
	assert.Same(t, first, second)
}

func TestRegisteredMetricsGather(t *testing.T) {
	RowsInsertedTotal.Add(10)
	DatesProcessedTotal.WithLabelValues("validated-first-try").Inc()

	families, err := GetRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["nse_analytics_rows_inserted_total"])
	assert.True(t, names["nse_analytics_dates_processed_total"])
}

func TestHandlerNotNil(t *testing.T) {
	assert.NotNil(t, Handler())
}
