/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reportcanvas/internal/domain"
)

// language=SQL
// dialect=SQLite
const insertSnapshotSQL = `INSERT INTO snapshots(page_id, ts, delta_blob) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestSnapshotSQL = `SELECT ts, delta_blob FROM snapshots WHERE page_id = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listSnapshotsSQL = `SELECT ts, delta_blob FROM snapshots WHERE page_id = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldSnapshotsSQL = `DELETE FROM snapshots WHERE page_id = ? AND id NOT IN (
	SELECT id FROM snapshots WHERE page_id = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Snapshot is one stored page state.
type Snapshot struct {
	TS   time.Time
	Blob []byte
}

// Page decodes the snapshot blob.
func (s Snapshot) Page() (domain.Page, error) {
	var p domain.Page
	if err := json.Unmarshal(s.Blob, &p); err != nil {
		return p, fmt.Errorf("decode page snapshot: %w", err)
	}
	return p, nil
}

// SaveSnapshot stores a page state blob for pageIndex.
func SaveSnapshot(ctx context.Context, ph *ProjectHandle, pageIndex int, blob []byte, ts time.Time) error {
	if ph == nil {
		return errors.New("nil ProjectHandle")
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	_, err = db.ExecContext(ctx, insertSnapshotSQL, pageIndex, ts.UTC().Format(tsLayout), blob)
	return err
}

// SavePageSnapshot serializes pg and stores it.
func SavePageSnapshot(ctx context.Context, ph *ProjectHandle, pageIndex int, pg domain.Page) error {
	b, err := json.Marshal(pg)
	if err != nil {
		return err
	}
	return SaveSnapshot(ctx, ph, pageIndex, b, time.Now())
}

// GetLatestSnapshot returns the newest snapshot for a page; ok is false when there is none.
func GetLatestSnapshot(ctx context.Context, ph *ProjectHandle, pageIndex int) (Snapshot, bool, error) {
	if ph == nil {
		return Snapshot{}, false, errors.New("nil ProjectHandle")
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer func() { _ = db.Close() }()
	var tsStr string
	var s Snapshot
	err = db.QueryRowContext(ctx, selectLatestSnapshotSQL, pageIndex).Scan(&tsStr, &s.Blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	s.TS, _ = time.Parse(tsLayout, tsStr)
	return s, true, nil
}

// ListSnapshots returns up to limit snapshots for a page, newest first.
func ListSnapshots(ctx context.Context, ph *ProjectHandle, pageIndex int, limit int) ([]Snapshot, error) {
	if ph == nil {
		return nil, errors.New("nil ProjectHandle")
	}
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listSnapshotsSQL, pageIndex, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		var tsStr string
		var s Snapshot
		if err := rows.Scan(&tsStr, &s.Blob); err != nil {
			return nil, err
		}
		s.TS, _ = time.Parse(tsLayout, tsStr)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneOldSnapshots keeps the newest keepLast snapshots of a page and returns how many were deleted.
func PruneOldSnapshots(ctx context.Context, ph *ProjectHandle, pageIndex int, keepLast int) (int64, error) {
	if ph == nil {
		return 0, errors.New("nil ProjectHandle")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneOldSnapshotsSQL, pageIndex, pageIndex, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RemapSnapshots re-keys snapshot history after pages were inserted, removed or
// reordered. moved maps an old page index to its new one; history of pages
// missing from moved is deleted. The rewrite runs in one transaction.
func RemapSnapshots(ctx context.Context, ph *ProjectHandle, moved map[int]int) error {
	if ph == nil {
		return errors.New("nil ProjectHandle")
	}
	db, err := InitOrOpenIndex(ph.Root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Park every row on a negative key first so no two pages share one mid-update.
	if _, err := tx.ExecContext(ctx, "UPDATE snapshots SET page_id = -page_id - 1;"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("park snapshots: %w", err)
	}
	upd, err := tx.PrepareContext(ctx, "UPDATE snapshots SET page_id = ? WHERE page_id = ?;")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare remap: %w", err)
	}
	defer upd.Close()
	for from, to := range moved {
		if from < 0 || to < 0 {
			_ = tx.Rollback()
			return fmt.Errorf("remap %d -> %d: negative page index", from, to)
		}
		if _, err := upd.ExecContext(ctx, to, -from-1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("remap page %d: %w", from, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE page_id < 0;"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("drop orphaned snapshots: %w", err)
	}
	return tx.Commit()
}
