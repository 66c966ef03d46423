/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps per-page undo/redo history of serialized page states.
package undo

import (
	"sync"
	"time"
)

// Snapshot is a serialized page state. The blob is opaque; its size is len(Blob).
type Snapshot struct {
	Page int
	Blob []byte
	TS   time.Time
}

// Config bounds memory use and controls coalescing.
type Config struct {
	// MaxBytes is a soft cap across all pages; the oldest entries go first.
	MaxBytes int
	// MaxPerPage limits undo depth per page (0 means unlimited).
	MaxPerPage int
	// MinInterval merges edits recorded within the interval on the same page
	// into one undo step. Zero disables coalescing.
	MinInterval time.Duration
}

// History provides undo/redo stacks per page. Record stores the state before
// an edit; Undo and Redo exchange the caller's current state with the stacked
// one. It is safe for concurrent use.
type History struct {
	cfg Config
	now func() time.Time

	mu         sync.Mutex
	undo       map[int][]Snapshot
	redo       map[int][]Snapshot
	totalBytes int
}

// New creates a history. MaxBytes defaults to 16 MiB.
func New(cfg Config) *History {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 << 20
	}
	return &History{cfg: cfg, now: time.Now, undo: map[int][]Snapshot{}, redo: map[int][]Snapshot{}}
}

// Record stores before as the state preceding a new edit on page and clears
// that page's redo stack. Within MinInterval of the last record the earlier
// state is kept so a burst of edits undoes in one step.
func (h *History) Record(page int, before []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := h.now()
	h.dropRedoLocked(page)
	stack := h.undo[page]
	if n := len(stack); n > 0 && h.cfg.MinInterval > 0 && ts.Sub(stack[n-1].TS) < h.cfg.MinInterval {
		stack[n-1].TS = ts
		return
	}
	h.undo[page] = append(stack, Snapshot{Page: page, Blob: before, TS: ts})
	h.totalBytes += len(before)
	h.enforceCapsLocked(page)
}

// Undo returns the previous state of page and keeps current for Redo.
func (h *History) Undo(page int, current []byte) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	stack := h.undo[page]
	if len(stack) == 0 {
		return nil, false
	}
	s := stack[len(stack)-1]
	h.undo[page] = stack[:len(stack)-1]
	h.redo[page] = append(h.redo[page], Snapshot{Page: page, Blob: current, TS: h.now()})
	h.totalBytes += len(current) - len(s.Blob)
	h.enforceCapsLocked(page)
	return s.Blob, true
}

// Redo reapplies the most recently undone state of page and keeps current for Undo.
func (h *History) Redo(page int, current []byte) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.redo[page]
	if len(r) == 0 {
		return nil, false
	}
	s := r[len(r)-1]
	h.redo[page] = r[:len(r)-1]
	h.undo[page] = append(h.undo[page], Snapshot{Page: page, Blob: current, TS: time.Time{}})
	h.totalBytes += len(current) - len(s.Blob)
	h.enforceCapsLocked(page)
	return s.Blob, true
}

// CanUndo reports whether page has undo history.
func (h *History) CanUndo(page int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo[page]) > 0
}

// CanRedo reports whether page has redo history.
func (h *History) CanRedo(page int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.redo[page]) > 0
}

// ClearPage drops the history of one page.
func (h *History) ClearPage(page int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.undo[page] {
		h.totalBytes -= len(s.Blob)
	}
	h.dropRedoLocked(page)
	delete(h.undo, page)
	if h.totalBytes < 0 {
		h.totalBytes = 0
	}
}

// Reset drops all history. Page indices shift when pages are added, removed
// or moved, so callers reset on those operations.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.undo = map[int][]Snapshot{}
	h.redo = map[int][]Snapshot{}
	h.totalBytes = 0
}

// Stats returns memory use, number of pages with undo history and total undo steps.
func (h *History) Stats() (totalBytes, pages, steps int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range h.undo {
		if len(v) > 0 {
			pages++
		}
		steps += len(v)
	}
	return h.totalBytes, pages, steps
}

func (h *History) dropRedoLocked(page int) {
	for _, s := range h.redo[page] {
		h.totalBytes -= len(s.Blob)
	}
	delete(h.redo, page)
}

func (h *History) enforceCapsLocked(page int) {
	if h.cfg.MaxPerPage > 0 {
		if stack := h.undo[page]; len(stack) > h.cfg.MaxPerPage {
			drop := len(stack) - h.cfg.MaxPerPage
			for _, s := range stack[:drop] {
				h.totalBytes -= len(s.Blob)
			}
			h.undo[page] = append([]Snapshot(nil), stack[drop:]...)
		}
	}
	// prune the oldest undo entry of whichever page has the oldest bottom entry
	for h.totalBytes > h.cfg.MaxBytes {
		victim, found := 0, false
		var oldest time.Time
		for p, stack := range h.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldest) {
				victim, oldest, found = p, stack[0].TS, true
			}
		}
		if !found {
			return
		}
		stack := h.undo[victim]
		h.totalBytes -= len(stack[0].Blob)
		if len(stack) == 1 {
			delete(h.undo, victim)
		} else {
			h.undo[victim] = stack[1:]
		}
	}
}
