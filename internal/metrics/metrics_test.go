package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.ConnectionOpened()
		c.ConnectionClosed()
		c.RecordEvent("buy_columns")
		c.RecordRoundReset("timer")
		c.SetPurchasedColumns(3)
		c.RecordDraw()
		c.RecordQueryError("pagos")
	})
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector("")

	c.ConnectionOpened()
	c.ConnectionOpened()
	c.ConnectionClosed()
	c.RecordEvent("buy_columns")
	c.RecordEvent("buy_columns")
	c.RecordEvent("")
	c.RecordRoundReset("sold_out")
	c.SetPurchasedColumns(15)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.events.WithLabelValues("buy_columns")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.roundResets.WithLabelValues("sold_out")))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.purchasedColumns))
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector("bingohall")
	c.RecordDraw()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "bingohall_draw_numbers_total 1"))
}
