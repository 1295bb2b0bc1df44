package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSupplierRequest("order.create", "ok", 120*time.Millisecond)
	c.RecordSupplierRequest("order.create", "api_error", 80*time.Millisecond)
	c.RecordTokenRefresh("ok")
	c.RecordWebhook("tracking", "processed")
	c.RecordOrderTransition("submitted", "shipped")
	c.RecordProductSync("ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.supplierRequests.WithLabelValues("order.create", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.supplierRequests.WithLabelValues("order.create", "api_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tokenRefreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.webhooks.WithLabelValues("tracking", "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("submitted", "shipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.productSyncs.WithLabelValues("ok")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordTokenRefresh("ok")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "dropsync_token_refresh_total"))
}

func TestNop_SatisfiesRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordWebhook("other", "ignored")
}
