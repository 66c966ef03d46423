/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package properties resolves widget property references against project
// info fields and user-defined global variables.
package properties

import (
	"regexp"
	"strings"

	"reportcanvas/internal/domain"
)

var refPattern = regexp.MustCompile(`\$\{\s*([^{}]+?)\s*\}`)

// Store is an immutable snapshot of the combined variable set. A change to
// either source produces a new Store; existing snapshots never change.
type Store struct {
	vars   []domain.GlobalVariable
	lookup map[string]string
}

// New builds a snapshot from project info followed by globals. A global with
// the same key as an info field shadows it.
func New(info domain.ProjectInfo, globals []domain.GlobalVariable) *Store {
	fields := info.Fields()
	s := &Store{
		vars:   make([]domain.GlobalVariable, 0, len(fields)+len(globals)),
		lookup: make(map[string]string, len(fields)+len(globals)),
	}
	for _, v := range fields {
		if v.Key == "__typename" {
			continue
		}
		s.vars = append(s.vars, v)
		s.lookup[v.Key] = v.Value
	}
	for _, v := range globals {
		if v.Key == "" {
			continue
		}
		s.vars = append(s.vars, v)
		s.lookup[v.Key] = v.Value
	}
	return s
}

// Combined returns a copy of the variable list in display order.
func (s *Store) Combined() []domain.GlobalVariable {
	out := make([]domain.GlobalVariable, len(s.vars))
	copy(out, s.vars)
	return out
}

// Lookup returns the value bound to key.
func (s *Store) Lookup(key string) (string, bool) {
	v, ok := s.lookup[key]
	return v, ok
}

// Resolve maps a property value reference to its concrete value.
// An exact variable key resolves to the variable's value. Otherwise any ${key}
// placeholders are substituted; unknown placeholders and plain text are kept.
func (s *Store) Resolve(ref string) string {
	if s == nil {
		return ref
	}
	if v, ok := s.lookup[ref]; ok {
		return v
	}
	if !strings.Contains(ref, "${") {
		return ref
	}
	return refPattern.ReplaceAllStringFunc(ref, func(match string) string {
		groups := refPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		if v, ok := s.lookup[groups[1]]; ok {
			return v
		}
		return match
	})
}

// ResolveAll resolves every value of props into a new map.
func (s *Store) ResolveAll(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = s.Resolve(v)
	}
	return out
}

// References returns the variable keys that ref depends on.
func (s *Store) References(ref string) []string {
	if _, ok := s.lookup[ref]; ok {
		return []string{ref}
	}
	var keys []string
	for _, m := range refPattern.FindAllStringSubmatch(ref, -1) {
		keys = append(keys, m[1])
	}
	return keys
}
