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

func TestInstrumentHandler_UsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(InstrumentHandler)
	router.HandleFunc("/api/cars/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/cars/{id}", "404"))

	req := httptest.NewRequest(http.MethodGet, "/api/cars/64b7f0c2a1b2c3d4e5f60718", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/cars/{id}", "404"))
	assert.Equal(t, before+1, after)
}

func TestRecordCounters(t *testing.T) {
	before := testutil.ToFloat64(bookings.WithLabelValues("conflict"))
	RecordBooking("conflict")
	assert.Equal(t, before+1, testutil.ToFloat64(bookings.WithLabelValues("conflict")))

	RecordPayment("", "completed")
	assert.Equal(t, 1.0, testutil.ToFloat64(payments.WithLabelValues("unknown", "completed")))
}

func TestHandler_ExposesRegistry(t *testing.T) {
	RecordBooking("created")

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "car_rental_bookings_transitions_total"))
}
