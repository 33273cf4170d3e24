package beacon

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchReportFromAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("--- scanner 6 ---\n1,2,3\n-4,-5,-6\n"))
	}))
	defer srv.Close()

	s, err := FetchReportFromAPI(srv.URL)
	if err != nil {
		t.Fatalf("FetchReportFromAPI: %v", err)
	}
	if s.ID != 6 {
		t.Errorf("scanner id = %d, want 6", s.ID)
	}
	if len(s.Local) != 2 || s.Local[1] != (Position{X: -4, Y: -5, Z: -6}) {
		t.Errorf("beacons = %v", s.Local)
	}
}

func TestFetchReportRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("--- scanner 2 ---\n7,8,9\n"))
	}))
	defer srv.Close()

	s, err := FetchReportFromAPI(srv.URL, WithBaseBackoff(time.Millisecond))
	if err != nil {
		t.Fatalf("FetchReportFromAPI: %v", err)
	}
	if s.ID != 2 {
		t.Errorf("scanner id = %d, want 2", s.ID)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}

func TestFetchReportRetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := FetchReportFromAPI(srv.URL, WithMaxRetries(2), WithBaseBackoff(time.Millisecond))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server saw %d requests, want initial + 2 retries", got)
	}
}

func TestFetchReportDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchReportFromAPI(srv.URL, WithBaseBackoff(time.Millisecond))
	if err == nil {
		t.Fatal("expected error on 404")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server saw %d requests, want exactly 1 (no retry on 4xx)", got)
	}
}

func TestFetchReportDoesNotRetryParseFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte("not a report"))
	}))
	defer srv.Close()

	_, err := FetchReportFromAPI(srv.URL, WithBaseBackoff(time.Millisecond))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("server saw %d requests, want exactly 1 (no retry on parse failure)", got)
	}
}

func TestFetchReportNetworkErrorRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from here on

	start := time.Now()
	_, err := FetchReportFromAPI(url, WithMaxRetries(1), WithBaseBackoff(time.Millisecond))
	if err == nil {
		t.Fatal("expected network error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("retries took %v, backoff option not applied", elapsed)
	}
}
