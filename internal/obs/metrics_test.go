package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                       "/",
		"/":                      "/",
		"/metrics":               "/metrics",
		"/login":                 "/login",
		"/login/":                "/login",
		"/check_session?ts=1":    "/check_session",
		"/dashboard#top":         "/dashboard",
		"/assets/app.css":        "/assets/*",
		"/wp-admin/setup.php":    "other",
		"/dashboard/../../etc":   "other",
		"/logout?redirect=/home": "/logout",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentRecordsStatus(t *testing.T) {
	Init()
	handler := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/dashboard", "302"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/dashboard", "302"))
	if after-before != 1 {
		t.Fatalf("expected counter to advance by 1, got %v", after-before)
	}
	if got := testutil.ToFloat64(httpInFlight); got != 0 {
		t.Fatalf("expected no in-flight requests, got %v", got)
	}
}
