/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"reportcanvas/internal/domain"
)

// ProjectSummary is the listing projection of a stored project.
type ProjectSummary struct {
	StableID  uuid.UUID `json:"stable_id"`
	Name      string    `json:"name"`
	Template  bool      `json:"is_template"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SaveProject upserts the project document and returns the new version.
// The first save of a stable id is version 1; every later save increments it.
func (r *Repository) SaveProject(ctx context.Context, id uuid.UUID, p domain.Project) (int64, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("marshal project: %w", err)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	var (
		rowID   int64
		version int64
	)
	// dialect=PostgreSQL
	err = tx.QueryRowContext(ctx, `INSERT INTO projects(stable_id, name, is_template, document)
		VALUES($1, $2, $3, $4::jsonb)
		ON CONFLICT (stable_id) DO UPDATE SET
			name = EXCLUDED.name,
			is_template = EXCLUDED.is_template,
			document = EXCLUDED.document,
			version = projects.version + 1,
			updated_at = now()
		RETURNING id, version`, id, p.Name, p.Template, string(doc)).Scan(&rowID, &version)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("upsert project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_widgets WHERE project_id = $1`, rowID); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("clear widget usage: %w", err)
	}
	for gid, n := range widgetCounts(p) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO project_widgets(project_id, widget_gid, uses) VALUES($1, $2, $3)`, rowID, gid, n); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert widget usage: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	r.log.Debug("project saved", slog.String("id", id.String()), slog.Int64("version", version))
	return version, nil
}

// LoadProject returns the stored project and its version.
func (r *Repository) LoadProject(ctx context.Context, id uuid.UUID) (domain.Project, int64, error) {
	var (
		p       domain.Project
		doc     []byte
		version int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT document, version FROM projects WHERE stable_id = $1`, id).Scan(&doc, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return p, 0, ErrNotFound
	}
	if err != nil {
		return p, 0, fmt.Errorf("select project: %w", err)
	}
	if err := json.Unmarshal(doc, &p); err != nil {
		return p, 0, fmt.Errorf("decode project: %w", err)
	}
	return p, version, nil
}

// ListProjects returns all stored projects, most recently updated first.
func (r *Repository) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT stable_id, name, is_template, version, updated_at FROM projects ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ProjectSummary
	for rows.Next() {
		var s ProjectSummary
		if err := rows.Scan(&s.StableID, &s.Name, &s.Template, &s.Version, &s.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// ProjectsUsing lists the projects that place at least one widget of gid.
func (r *Repository) ProjectsUsing(ctx context.Context, gid string) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT p.stable_id FROM projects p
		JOIN project_widgets w ON w.project_id = p.id
		WHERE w.widget_gid = $1 ORDER BY p.name`, gid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteProject removes a stored project. Deleting an unknown id is ErrNotFound.
func (r *Repository) DeleteProject(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE stable_id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func widgetCounts(p domain.Project) map[string]int {
	out := map[string]int{}
	for _, pg := range p.Pages {
		for _, w := range pg.ReportWidgets {
			if w.WidgetGID != "" {
				out[w.WidgetGID]++
			}
		}
	}
	return out
}
