package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://WWW.Instagram.com/natgeo/", "www.instagram.com"},
		{"no scheme", "instagram.com/p/abc", "instagram.com"},
		{"host with port", "localhost:8080", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestObserveHelpersInitialize(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(verdictsTotal.WithLabelValues("SKELETON"))
	ObserveVerdict("SKELETON")
	require.InDelta(t, before+1, testutil.ToFloat64(verdictsTotal.WithLabelValues("SKELETON")), 0.001)

	beforeLinks := testutil.ToFloat64(discoveredLinksTotal.WithLabelValues("anchors"))
	ObserveDiscovered("anchors", 3)
	ObserveDiscovered("anchors", 0)
	require.InDelta(t, beforeLinks+3, testutil.ToFloat64(discoveredLinksTotal.WithLabelValues("anchors")), 0.001)

	ObserveStrategyHit("followers", "structured-metadata", 1)
	require.Equal(t, 1.0, testutil.ToFloat64(strategyHitsTotal.WithLabelValues("followers", "structured-metadata", "1")))
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ok := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	notFound := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.InDelta(t, ok+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), 0.001)
	require.InDelta(t, notFound+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")), 0.001)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, seed := range []string{"https://www.instagram.com", "instagram.com", "ftp://x"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, input string) {
		if SanitizeSite(input) == "" {
			t.Fatalf("SanitizeSite(%q) returned empty", input)
		}
	})
}
