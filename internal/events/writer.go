package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends to the local action log. The log records what this client
// did (sign-ins, report submissions, claim outcomes, status updates); it is
// not a mirror of backend state.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type Payload map[string]any

// Entry is one logged action.
type Entry struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts" format:"date-time"`
	Type     string `json:"type"`
	ReportID string `json:"report_id,omitempty"`
	ActorID  string `json:"actor_id"`
	Payload  string `json:"payload_json"`
}

func (w Writer) Append(ctx context.Context, evtType, reportID, actorID string, payload Payload) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal action payload: %w", err)
	}
	_, err = w.DB.ExecContext(ctx, `INSERT INTO actions(ts,type,report_id,actor_id,payload_json) VALUES (?,?,?,?,?)`,
		ts, evtType, nullable(reportID), actorID, string(data))
	return err
}

// Latest returns up to n most recent entries, optionally filtered by type
// and report id.
func (w Writer) Latest(ctx context.Context, n int, evtType, reportID string) ([]Entry, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,COALESCE(report_id,''),actor_id,payload_json FROM actions WHERE 1=1`
	var args []any
	if evtType != "" {
		query += ` AND type=?`
		args = append(args, evtType)
	}
	if reportID != "" {
		query += ` AND report_id=?`
		args = append(args, reportID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := w.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ReportID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
