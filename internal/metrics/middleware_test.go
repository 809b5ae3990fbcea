package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(MetricsMiddleware)
	r.HandleFunc("/api/reports/{id}/vote", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodPost)

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/reports/{id}/vote", "418"))

	for _, id := range []string{"bfro_1", "woodape_2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/reports/"+id+"/vote", nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		require.Equal(t, http.StatusTeapot, rr.Code)
	}

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/reports/{id}/vote", "418"))
	assert.Equal(t, 2.0, after-before)
}

func TestStatusRecorder(t *testing.T) {
	rr := httptest.NewRecorder()
	w, status := StatusRecorder(rr)

	assert.Equal(t, http.StatusOK, status())
	w.WriteHeader(http.StatusCreated)
	w.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusCreated, status())
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestHandlerExposesHostRegistry(t *testing.T) {
	mm := GetInstance()
	mm.InitializeMetrics()
	mm.SetStorePath(t.TempDir())
	mm.Collect()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "bigfoot_heap_alloc_bytes"))
	assert.True(t, strings.Contains(body, "bigfoot_store_volume_bytes"))
}
