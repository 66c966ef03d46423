/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package project

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"reportcanvas/internal/catalog"
	"reportcanvas/internal/domain"
)

var chartDef = domain.WidgetDefinition{
	GID:  "aiverify.stock:bar-chart",
	Name: "Bar Chart",
	Dependencies: []domain.WidgetDependency{
		{GID: "aiverify.algo:fairness", Version: "1.0"},
		{GID: "aiverify.ib:dataset"},
	},
}

func TestDependenciesRefCount(t *testing.T) {
	d := NewDependencies()
	d.Add("a", chartDef.Dependencies)
	d.Add("b", chartDef.Dependencies[:1])
	d.Add("a", chartDef.Dependencies) // same key twice counts once
	if n := d.Count("aiverify.algo:fairness"); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
	d.Remove("a")
	d.Remove("zzz")
	want := []DependencyUse{{GID: "aiverify.algo:fairness", Version: "1.0", Count: 1}}
	if diff := cmp.Diff(want, d.List()); diff != "" {
		t.Fatalf("list (-want +got):\n%s", diff)
	}
	d.Remove("b")
	if len(d.List()) != 0 {
		t.Fatalf("expected empty registry, got %v", d.List())
	}
}

func TestSessionRegistersExistingWidgets(t *testing.T) {
	p := domain.Project{
		Name: "S",
		Pages: []domain.Page{{
			Layouts:       []domain.LayoutItem{{Key: "1", W: 4, H: 4}, {Key: "2", W: 4, H: 4, X: 4}},
			ReportWidgets: []domain.ReportWidgetItem{{Key: "1", WidgetGID: chartDef.GID}, {Key: "2", WidgetGID: "unknown"}},
		}},
	}
	s := NewSession(p, catalog.NewMemoryCatalog(chartDef), nil, nil)
	if n := s.Dependencies().Count("aiverify.ib:dataset"); n != 1 {
		t.Fatalf("dependency count = %d, want 1", n)
	}
	s.RemoveReportWidget("1")
	if n := s.Dependencies().Count("aiverify.ib:dataset"); n != 0 {
		t.Fatalf("dependency count after removal = %d", n)
	}
}

func TestSessionProjectRoundTrip(t *testing.T) {
	p := domain.Project{
		Name:       "Round Trip",
		Template:   true,
		Info:       domain.ProjectInfo{Name: "Round Trip", Company: "ACME"},
		GlobalVars: []domain.GlobalVariable{{Key: "k", Value: "v"}},
		Pages: []domain.Page{{
			Layouts:       []domain.LayoutItem{{Key: "1", X: 1, Y: 2, W: 3, H: 4, MinW: 1}},
			ReportWidgets: []domain.ReportWidgetItem{{Key: "1", WidgetGID: "g", Properties: map[string]string{"t": "${k}"}}},
		}},
	}
	s := NewSession(p, nil, nil, nil)
	if diff := cmp.Diff(p, s.Project()); diff != "" {
		t.Fatalf("project (-want +got):\n%s", diff)
	}
}

func TestSetGlobalsRecomputesStore(t *testing.T) {
	s := NewSession(domain.Project{GlobalVars: []domain.GlobalVariable{{Key: "k", Value: "old"}}}, nil, nil, nil)
	before := s.Properties()
	after := s.SetGlobals([]domain.GlobalVariable{{Key: "k", Value: "new"}})
	if before == after {
		t.Fatalf("property store must be replaced, not mutated")
	}
	if before.Resolve("k") != "old" || after.Resolve("k") != "new" {
		t.Fatalf("unexpected resolution old=%q new=%q", before.Resolve("k"), after.Resolve("k"))
	}
	s.SetProjectInfo(domain.ProjectInfo{Name: "Renamed", Company: "X"})
	if s.Name() != "Renamed" || s.Properties().Resolve("company") != "X" {
		t.Fatalf("project info not applied")
	}
}
