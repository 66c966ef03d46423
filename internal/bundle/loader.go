/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package bundle fetches compiled widget bundles by GID and caches them for the session.
package bundle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	applog "reportcanvas/internal/log"
)

// Bundle is the compiled renderable content of a widget definition.
type Bundle struct {
	Code        string         `json:"code"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
}

// Fetcher retrieves a bundle from the external bundle service.
type Fetcher interface {
	GetBundle(ctx context.Context, gid string) (Bundle, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, gid string) (Bundle, error)

func (f FetcherFunc) GetBundle(ctx context.Context, gid string) (Bundle, error) { return f(ctx, gid) }

// LoadError reports a failed network fetch or compile step for a GID.
type LoadError struct {
	GID string
	Err error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load bundle %s: %v", e.GID, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// Pending is a bundle request that may still be in flight.
type Pending struct {
	gid    string
	done   chan struct{}
	bundle Bundle
	err    error
}

// GID returns the requested widget GID.
func (p *Pending) GID() string { return p.gid }

// Done is closed once the request resolved.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the bundle resolved or ctx is done. Cancelling ctx only
// abandons the wait; the fetch itself keeps running for other waiters.
func (p *Pending) Wait(ctx context.Context) (Bundle, error) {
	select {
	case <-p.done:
		return p.bundle, p.err
	case <-ctx.Done():
		return Bundle{}, ctx.Err()
	}
}

// Loader caches bundles for the lifetime of the session and allows at most one
// in-flight fetch per GID. It is safe for concurrent use.
type Loader struct {
	fetcher Fetcher
	log     *slog.Logger

	mu       sync.Mutex
	cache    map[string]Bundle
	inflight map[string]*Pending
	fetches  int
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// NewLoader creates a loader that fetches through f.
func NewLoader(f Fetcher) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		fetcher:  f,
		log:      applog.WithComponent("bundle"),
		cache:    map[string]Bundle{},
		inflight: map[string]*Pending{},
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Cached returns the cached bundle for gid without any round trip.
func (l *Loader) Cached(gid string) (Bundle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.cache[gid]
	return b, ok
}

// Request registers interest in gid and returns immediately. The cache check and
// the in-flight registration happen under one lock: a cached GID yields a resolved
// Pending, an in-flight GID yields the existing Pending, otherwise one fetch starts.
func (l *Loader) Request(gid string) *Pending {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.cache[gid]; ok {
		p := &Pending{gid: gid, done: make(chan struct{}), bundle: b}
		close(p.done)
		return p
	}
	if p, ok := l.inflight[gid]; ok {
		return p
	}
	p := &Pending{gid: gid, done: make(chan struct{})}
	l.inflight[gid] = p
	l.fetches++
	l.wg.Add(1)
	go l.fetch(p)
	return p
}

// Load requests gid and waits for the result.
func (l *Loader) Load(ctx context.Context, gid string) (Bundle, error) {
	return l.Request(gid).Wait(ctx)
}

// Preload resolves all gids concurrently and returns the bundles that loaded.
// Failures are logged and collected; the first one is returned alongside the partial map.
func (l *Loader) Preload(ctx context.Context, gids []string) (map[string]Bundle, error) {
	var (
		mu       sync.Mutex
		out      = make(map[string]Bundle, len(gids))
		firstErr error
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(8)
	seen := map[string]struct{}{}
	for _, gid := range gids {
		if _, dup := seen[gid]; dup {
			continue
		}
		seen[gid] = struct{}{}
		p := l.Request(gid)
		eg.Go(func() error {
			b, err := p.Wait(egCtx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			out[p.GID()] = b
			return nil
		})
	}
	_ = eg.Wait()
	return out, firstErr
}

// Fetches returns how many network fetches were started.
func (l *Loader) Fetches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetches
}

// Close cancels outstanding fetches and waits for their goroutines.
func (l *Loader) Close() {
	l.cancel()
	l.wg.Wait()
}

func (l *Loader) fetch(p *Pending) {
	defer l.wg.Done()
	lg := applog.WithOperation(l.log, "fetch").With(slog.String("gid", p.gid))
	lg.Debug("fetching bundle")
	b, err := l.fetcher.GetBundle(l.baseCtx, p.gid)
	if err == nil && b.Code == "" {
		err = fmt.Errorf("bundle has no code")
	}

	l.mu.Lock()
	delete(l.inflight, p.gid)
	if err != nil {
		p.err = &LoadError{GID: p.gid, Err: err}
	} else {
		l.cache[p.gid] = b
		p.bundle = b
	}
	l.mu.Unlock()
	close(p.done)

	if err != nil {
		lg.Error("bundle fetch failed", slog.Any("err", err))
		return
	}
	lg.Debug("bundle cached", slog.Int("bytes", len(b.Code)))
}
