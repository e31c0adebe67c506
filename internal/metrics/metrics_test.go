package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://FilmFreeway.com/festivals", "filmfreeway.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := fetchAttemptsTotal
	Init()
	require.NotNil(t, first)
	assert.Same(t, first, fetchAttemptsTotal)
}

func TestObservers(t *testing.T) {
	Init()

	before := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("metrics-test.example", OutcomeOK))
	ObserveFetch("https://metrics-test.example/a", OutcomeOK)
	ObserveFetch("https://metrics-test.example/b", OutcomeOK)
	assert.InDelta(t, before+2, testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("metrics-test.example", OutcomeOK)), 0.001)

	recBefore := testutil.ToFloat64(recordsTotal.WithLabelValues("records-test.example"))
	ObserveRecords("https://records-test.example/x", 3)
	ObserveRecords("https://records-test.example/x", 0)
	assert.InDelta(t, recBefore+3, testutil.ToFloat64(recordsTotal.WithLabelValues("records-test.example")), 0.001)

	ObserveBatch(2*time.Second, 7)
	assert.InDelta(t, 7, testutil.ToFloat64(frontierSize), 0.001)
	assert.Positive(t, testutil.CollectAndCount(batchDurationSeconds))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://filmfreeway.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
