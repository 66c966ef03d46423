/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package layout holds the ordered page collection of a report and the grid
// geometry rules applied to the layout entries placed on each page.
// The Store is the only writer of pages; everything else reads copies.
package layout

import (
	"errors"
	"fmt"
	"sync"

	"reportcanvas/internal/domain"
)

// ErrIndexOutOfRange is returned for page indices outside [0, Len()).
var ErrIndexOutOfRange = errors.New("page index out of range")

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventAdd     EventKind = "add"
	EventInsert  EventKind = "insert"
	EventRemove  EventKind = "remove"
	EventUpdate  EventKind = "update"
	EventMove    EventKind = "move"
	EventReplace EventKind = "replace"
)

// Event describes a successful store mutation.
// Index2 is only meaningful for EventMove (destination index).
type Event struct {
	Kind   EventKind
	Index  int
	Index2 int
	Count  int // page count after the mutation
}

// PageUpdate is a partial page. Nil fields are retained from the current page.
type PageUpdate struct {
	Layouts       []domain.LayoutItem
	ReportWidgets []domain.ReportWidgetItem
}

// Store is an ordered collection of pages. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	pages  []domain.Page
	nextID int
	subs   map[int]func(Event)
}

// NewStore creates a store seeded with copies of pages.
func NewStore(pages []domain.Page) *Store {
	s := &Store{subs: map[int]func(Event){}}
	s.pages = clonePages(pages)
	return s
}

// Subscribe registers fn for mutation events and returns a function that removes it.
// Events are delivered synchronously after the store lock is released.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Len returns the number of pages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// Page returns a copy of the page at index.
func (s *Store) Page(index int) (domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.pages) {
		return domain.Page{}, fmt.Errorf("page %d: %w", index, ErrIndexOutOfRange)
	}
	return s.pages[index].Clone(), nil
}

// Pages returns a copy of all pages.
func (s *Store) Pages() []domain.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePages(s.pages)
}

// Add appends a page.
func (s *Store) Add(p domain.Page) {
	s.mu.Lock()
	s.pages = append(s.pages, normalize(p.Clone()))
	ev := Event{Kind: EventAdd, Index: len(s.pages) - 1, Count: len(s.pages)}
	s.mu.Unlock()
	s.publish(ev)
}

// Insert places a page at index, shifting later pages back. index == Len() appends.
func (s *Store) Insert(index int, p domain.Page) error {
	s.mu.Lock()
	if index < 0 || index > len(s.pages) {
		s.mu.Unlock()
		return fmt.Errorf("insert at %d: %w", index, ErrIndexOutOfRange)
	}
	s.pages = append(s.pages, domain.Page{})
	copy(s.pages[index+1:], s.pages[index:])
	s.pages[index] = normalize(p.Clone())
	ev := Event{Kind: EventInsert, Index: index, Count: len(s.pages)}
	s.mu.Unlock()
	s.publish(ev)
	return nil
}

// Remove deletes the page at index. Keeping at least one page is the caller's job.
func (s *Store) Remove(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.pages) {
		s.mu.Unlock()
		return fmt.Errorf("remove %d: %w", index, ErrIndexOutOfRange)
	}
	s.pages = append(s.pages[:index], s.pages[index+1:]...)
	ev := Event{Kind: EventRemove, Index: index, Count: len(s.pages)}
	s.mu.Unlock()
	s.publish(ev)
	return nil
}

// Update shallow-merges u into the page at index. Both slices are replaced
// under one lock, so no reader sees a widget item without its layout entry.
func (s *Store) Update(index int, u PageUpdate) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.pages) {
		s.mu.Unlock()
		return fmt.Errorf("update %d: %w", index, ErrIndexOutOfRange)
	}
	pg := s.pages[index]
	if u.Layouts != nil {
		pg.Layouts = append([]domain.LayoutItem(nil), u.Layouts...)
	}
	if u.ReportWidgets != nil {
		ws := make([]domain.ReportWidgetItem, len(u.ReportWidgets))
		for i, w := range u.ReportWidgets {
			ws[i] = w.Clone()
		}
		pg.ReportWidgets = ws
	}
	s.pages[index] = pg
	ev := Event{Kind: EventUpdate, Index: index, Count: len(s.pages)}
	s.mu.Unlock()
	s.publish(ev)
	return nil
}

// Move relocates the page at from to position to; other pages keep their relative order.
func (s *Store) Move(from, to int) error {
	s.mu.Lock()
	n := len(s.pages)
	if from < 0 || from >= n || to < 0 || to >= n {
		s.mu.Unlock()
		return fmt.Errorf("move %d -> %d: %w", from, to, ErrIndexOutOfRange)
	}
	if from != to {
		p := s.pages[from]
		if to < from {
			copy(s.pages[to+1:from+1], s.pages[to:from])
		} else {
			copy(s.pages[from:to], s.pages[from+1:to+1])
		}
		s.pages[to] = p
	}
	ev := Event{Kind: EventMove, Index: from, Index2: to, Count: n}
	s.mu.Unlock()
	s.publish(ev)
	return nil
}

// Replace swaps the whole page collection, e.g. after loading a project.
func (s *Store) Replace(pages []domain.Page) {
	s.mu.Lock()
	s.pages = clonePages(pages)
	ev := Event{Kind: EventReplace, Index: -1, Count: len(s.pages)}
	s.mu.Unlock()
	s.publish(ev)
}

func (s *Store) publish(ev Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func clonePages(pages []domain.Page) []domain.Page {
	out := make([]domain.Page, len(pages))
	for i := range pages {
		out[i] = normalize(pages[i].Clone())
	}
	return out
}

// normalize replaces nil slices so an empty page serializes as [] rather than null.
func normalize(p domain.Page) domain.Page {
	if p.Layouts == nil {
		p.Layouts = []domain.LayoutItem{}
	}
	if p.ReportWidgets == nil {
		p.ReportWidgets = []domain.ReportWidgetItem{}
	}
	return p
}
