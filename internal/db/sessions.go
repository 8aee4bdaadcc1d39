package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trackpose/internal/pose"
	"github.com/banshee-data/trackpose/internal/posemux"
)

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned when recording into an ended session.
	ErrSessionEnded = errors.New("session already ended")
)

// Session describes one recording run. Axes and DeviceIndices are the
// settings the frames were sampled with.
type Session struct {
	ID            string          `json:"session_id"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	Axes          pose.AxisConfig `json:"axes"`
	DeviceIndices []uint32        `json:"device_indices"`
	FrameCount    int64           `json:"frame_count"`
}

// StoredRecord is one persisted device record. Slot is the record's
// position within its frame.
type StoredRecord struct {
	Seq       uint64
	Timestamp time.Time
	Slot      int
	Device    uint32
	Record    pose.PoseRecord
}

// StartSession opens a new recording session.
func (db *DB) StartSession(axes pose.AxisConfig, indices []uint32) (Session, error) {
	if indices == nil {
		indices = []uint32{}
	}
	encoded, err := json.Marshal(indices)
	if err != nil {
		return Session{}, fmt.Errorf("failed to encode device indices: %w", err)
	}

	s := Session{
		ID:            uuid.NewString(),
		StartedAt:     time.Now().UTC(),
		Axes:          axes,
		DeviceIndices: append([]uint32(nil), indices...),
	}
	_, err = db.Exec(`
		INSERT INTO sessions (session_id, started_at, invert_x, invert_z, flip_xz, device_indices)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.StartedAt.UnixNano(), axes.InvertX, axes.InvertZ, axes.FlipXZ, string(encoded),
	)
	if err != nil {
		return Session{}, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// EndSession marks a session as ended. Ending an ended session is a no-op.
func (db *DB) EndSession(sessionID string) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE session_id = ? AND ended_at IS NULL`,
		time.Now().UTC().UnixNano(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := db.GetSession(sessionID); err != nil {
			return err
		}
	}
	return nil
}

// RecordFrame stores every record of f under sessionID in one transaction.
func (db *DB) RecordFrame(sessionID string, f posemux.Frame) error {
	if len(f.Indices) != len(f.Records) {
		return fmt.Errorf("frame %d has %d indices but %d records", f.Seq, len(f.Indices), len(f.Records))
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ended sql.NullInt64
	err = tx.QueryRow(`SELECT ended_at FROM sessions WHERE session_id = ?`, sessionID).Scan(&ended)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if ended.Valid {
		return fmt.Errorf("%w: %s", ErrSessionEnded, sessionID)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO pose_records (session_id, seq, ts_unix_nanos, slot, device_index, x, y, z, qx, qy, qz, qw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := f.Timestamp.UnixNano()
	for slot, r := range f.Records {
		args := []interface{}{sessionID, int64(f.Seq), ts, slot, int64(f.Indices[slot])}
		for _, v := range r {
			args = append(args, nullableFloat(v))
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("failed to insert record %d of frame %d: %w", slot, f.Seq, err)
		}
	}

	if _, err := tx.Exec(`UPDATE sessions SET frame_count = frame_count + 1 WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to update frame count: %w", err)
	}
	return tx.Commit()
}

// GetSession returns a single session.
func (db *DB) GetSession(sessionID string) (Session, error) {
	row := db.QueryRow(sessionSelect+` WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, err
}

// ListSessions returns all sessions, newest first.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.Query(sessionSelect + ` ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SessionRecords returns stored records ordered by frame and slot. A non-nil
// device restricts the result to that device index; limit <= 0 returns all.
func (db *DB) SessionRecords(sessionID string, device *uint32, limit int) ([]StoredRecord, error) {
	if _, err := db.GetSession(sessionID); err != nil {
		return nil, err
	}

	var query strings.Builder
	query.WriteString(`
		SELECT seq, ts_unix_nanos, slot, device_index, x, y, z, qx, qy, qz, qw
		FROM pose_records WHERE session_id = ?`)
	args := []interface{}{sessionID}
	if device != nil {
		query.WriteString(` AND device_index = ?`)
		args = append(args, int64(*device))
	}
	query.WriteString(` ORDER BY seq, slot`)
	if limit > 0 {
		query.WriteString(` LIMIT ?`)
		args = append(args, limit)
	}

	rows, err := db.Query(query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []StoredRecord{}
	for rows.Next() {
		var (
			r    StoredRecord
			seq  int64
			ts   int64
			vals [pose.RecordSize]sql.NullFloat64
		)
		if err := rows.Scan(&seq, &ts, &r.Slot, &r.Device,
			&vals[0], &vals[1], &vals[2], &vals[3], &vals[4], &vals[5], &vals[6]); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Seq = uint64(seq)
		r.Timestamp = time.Unix(0, ts).UTC()
		for i, v := range vals {
			r.Record[i] = float32(math.NaN())
			if v.Valid {
				r.Record[i] = float32(v.Float64)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

const sessionSelect = `
	SELECT session_id, started_at, ended_at, invert_x, invert_z, flip_xz, device_indices, frame_count
	FROM sessions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (Session, error) {
	var (
		s       Session
		started int64
		ended   sql.NullInt64
		indices string
	)
	if err := row.Scan(&s.ID, &started, &ended, &s.Axes.InvertX, &s.Axes.InvertZ, &s.Axes.FlipXZ,
		&indices, &s.FrameCount); err != nil {
		return Session{}, err
	}
	s.StartedAt = time.Unix(0, started).UTC()
	if ended.Valid {
		t := time.Unix(0, ended.Int64).UTC()
		s.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(indices), &s.DeviceIndices); err != nil {
		return Session{}, fmt.Errorf("session %s has malformed device indices: %w", s.ID, err)
	}
	return s, nil
}

// nullableFloat maps NaN and ±Inf to NULL; SQLite has no representation
// for them.
func nullableFloat(v float32) interface{} {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
