/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package bundle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// gatedFetcher blocks every fetch until release is closed and counts calls per GID.
type gatedFetcher struct {
	release chan struct{}
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]error
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{release: make(chan struct{}), calls: map[string]int{}, fail: map[string]error{}}
}

func (g *gatedFetcher) GetBundle(ctx context.Context, gid string) (Bundle, error) {
	g.mu.Lock()
	g.calls[gid]++
	err := g.fail[gid]
	g.mu.Unlock()
	select {
	case <-g.release:
	case <-ctx.Done():
		return Bundle{}, ctx.Err()
	}
	if err != nil {
		return Bundle{}, err
	}
	return Bundle{Code: "code:" + gid}, nil
}

func (g *gatedFetcher) count(gid string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[gid]
}

func TestConcurrentRequestsShareOneFetch(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newGatedFetcher()
	l := NewLoader(f)
	defer l.Close()

	p1 := l.Request("w1")
	p2 := l.Request("w1")
	if p1 != p2 {
		t.Fatalf("expected the second request to join the in-flight fetch")
	}
	close(f.release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b1, err := p1.Wait(ctx)
	if err != nil {
		t.Fatalf("wait p1: %v", err)
	}
	b2, err := p2.Wait(ctx)
	if err != nil {
		t.Fatalf("wait p2: %v", err)
	}
	if b1.Code != "code:w1" || b2.Code != b1.Code {
		t.Fatalf("unexpected bundles %q %q", b1.Code, b2.Code)
	}
	if n := f.count("w1"); n != 1 {
		t.Fatalf("expected exactly one fetch, got %d", n)
	}
	if l.Fetches() != 1 {
		t.Fatalf("loader fetch counter = %d, want 1", l.Fetches())
	}
}

func TestManyGoroutinesOneFetch(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	l := NewLoader(FetcherFunc(func(ctx context.Context, gid string) (Bundle, error) {
		calls.Add(1)
		<-gate
		return Bundle{Code: "x"}, nil
	}))
	defer l.Close()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Load(context.Background(), "shared"); err != nil {
				t.Errorf("load: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one fetch, got %d", n)
	}
}

func TestCachedAfterSuccessNoRoundTrip(t *testing.T) {
	f := newGatedFetcher()
	close(f.release)
	l := NewLoader(f)
	defer l.Close()

	if _, ok := l.Cached("w"); ok {
		t.Fatalf("cache should start empty")
	}
	if _, err := l.Load(context.Background(), "w"); err != nil {
		t.Fatalf("load: %v", err)
	}
	b, ok := l.Cached("w")
	if !ok || b.Code != "code:w" {
		t.Fatalf("expected cached bundle, got %+v ok=%v", b, ok)
	}
	p := l.Request("w")
	select {
	case <-p.Done():
	default:
		t.Fatalf("request for cached gid must resolve synchronously")
	}
	if n := f.count("w"); n != 1 {
		t.Fatalf("expected a single fetch, got %d", n)
	}
}

func TestFailedFetchLeavesNoCacheEntry(t *testing.T) {
	f := newGatedFetcher()
	f.fail["bad"] = errors.New("compile error")
	close(f.release)
	l := NewLoader(f)
	defer l.Close()

	_, err := l.Load(context.Background(), "bad")
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if le.GID != "bad" {
		t.Fatalf("LoadError GID = %q", le.GID)
	}
	if _, ok := l.Cached("bad"); ok {
		t.Fatalf("failed fetch must not be cached")
	}
	// the next request retries
	f.mu.Lock()
	delete(f.fail, "bad")
	f.mu.Unlock()
	if _, err := l.Load(context.Background(), "bad"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.count("bad") != 2 {
		t.Fatalf("expected a second fetch after failure, got %d", f.count("bad"))
	}
}

func TestEmptyCodeIsLoadError(t *testing.T) {
	l := NewLoader(FetcherFunc(func(ctx context.Context, gid string) (Bundle, error) {
		return Bundle{}, nil
	}))
	defer l.Close()
	_, err := l.Load(context.Background(), "empty")
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError for bundle without code, got %v", err)
	}
}

func TestPreloadCollectsSuccesses(t *testing.T) {
	f := newGatedFetcher()
	f.fail["c"] = errors.New("404")
	close(f.release)
	l := NewLoader(f)
	defer l.Close()

	got, err := l.Preload(context.Background(), []string{"a", "b", "a", "c"})
	if err == nil {
		t.Fatalf("expected error for failing gid")
	}
	if len(got) != 2 || got["a"].Code != "code:a" || got["b"].Code != "code:b" {
		t.Fatalf("unexpected preload result: %+v", got)
	}
	if f.count("a") != 1 {
		t.Fatalf("duplicate gid fetched %d times", f.count("a"))
	}
}

func TestWaitHonoursContext(t *testing.T) {
	f := newGatedFetcher()
	l := NewLoader(f)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := l.Load(ctx, "slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	l.Close()
	if _, ok := l.Cached("slow"); ok {
		t.Fatalf("cancelled fetch must not be cached")
	}
}
