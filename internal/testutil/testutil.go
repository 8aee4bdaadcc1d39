// Package testutil provides shared test utilities and fixtures.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/trackpose/internal/monitoring"
	"github.com/banshee-data/trackpose/internal/pose"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// MuteLogs silences monitoring.Logf for the duration of the test.
func MuteLogs(t testing.TB) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

// CaptureLogs redirects monitoring.Logf into the returned slice pointer.
func CaptureLogs(t testing.TB) *[]string {
	t.Helper()
	original := monitoring.Logf
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.Logf = original })
	return &lines
}

// AssertRecordNear fails unless every element of got is within tol of want.
// NaN matches only NaN.
func AssertRecordNear(t testing.TB, got, want pose.PoseRecord, tol float64) {
	t.Helper()
	for i := range want {
		g, w := float64(got[i]), float64(want[i])
		if math.IsNaN(w) {
			if !math.IsNaN(g) {
				t.Errorf("record[%d] = %v, want NaN", i, g)
			}
			continue
		}
		if math.Abs(g-w) > tol {
			t.Errorf("record[%d] = %v, want %v (tol %v)", i, g, w, tol)
		}
	}
}
