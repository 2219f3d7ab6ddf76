package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const callers = 5
	var (
		refreshes  atomic.Int32
		authorized atomic.Int32
		stale      atomic.Int32
		allStale   = make(chan struct{})
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		time.Sleep(20 * time.Millisecond)
		writeJSON(w, http.StatusOK, `{"accessToken":"fresh","role":"owner"}`)
	})
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer fresh" {
			authorized.Add(1)
			writeJSON(w, http.StatusOK, `{"ok":true}`)
			return
		}
		// Hold every stale request until all of them are in flight.
		if stale.Add(1) == callers {
			close(allStale)
		}
		<-allStale
		writeJSON(w, http.StatusUnauthorized, `{"message":"Access token expired.","code":"TOKEN_EXPIRED"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL+"/api", WithToken("stale"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Do(context.Background(), http.MethodGet, "/ping", "", nil); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("request failed: %v", err)
	}

	if got := refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly 1 refresh, got %d", got)
	}
	if got := authorized.Load(); got != callers {
		t.Fatalf("expected %d retried requests, got %d", callers, got)
	}
	if c.Token() != "fresh" {
		t.Fatalf("expected refreshed token, got %q", c.Token())
	}
}

func TestRefreshFailureClearsToken(t *testing.T) {
	var refreshes atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{"message":"Refresh token expired. Please login again.","code":"REFRESH_EXPIRED"}`)
	})
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"Access token expired.","code":"TOKEN_EXPIRED"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var ended atomic.Int32
	c, _ := New(srv.URL+"/api", WithToken("stale"), OnSessionEnd(func() { ended.Add(1) }))

	_, err := c.Do(context.Background(), http.MethodGet, "/ping", "", nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "REFRESH_EXPIRED" {
		t.Fatalf("expected REFRESH_EXPIRED error, got %v", err)
	}
	if c.Token() != "" {
		t.Fatalf("expected token cleared, got %q", c.Token())
	}
	if ended.Load() != 1 || refreshes.Load() != 1 {
		t.Fatalf("expected one refresh and one session end, got %d %d", refreshes.Load(), ended.Load())
	}
}

func TestRetryHappensOnce(t *testing.T) {
	var refreshes, pings atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		writeJSON(w, http.StatusOK, `{"token":"fresh"}`)
	})
	mux.HandleFunc("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		pings.Add(1)
		writeJSON(w, http.StatusUnauthorized, `{"message":"Account not verified.","code":"ACCOUNT_NOT_VERIFIED"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := New(srv.URL + "/api")
	_, err := c.Do(context.Background(), http.MethodGet, "/ping", "", nil)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode() != http.StatusUnauthorized || apiErr.ServerMessage() != "Account not verified." {
		t.Fatalf("expected the retried 401 to surface, got %v", err)
	}
	if pings.Load() != 2 || refreshes.Load() != 1 {
		t.Fatalf("expected 2 attempts and 1 refresh, got %d and %d", pings.Load(), refreshes.Load())
	}
	if c.Token() != "fresh" {
		t.Fatalf("expected token from the legacy field, got %q", c.Token())
	}
}
