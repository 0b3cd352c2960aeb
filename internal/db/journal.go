package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-geo-elements/internal/engine"
)

// journalSchema is applied one statement at a time. seq orders entries
// recorded within the same clock tick.
var journalSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS journal_seq`,
	`CREATE TABLE IF NOT EXISTS journal (
	id       VARCHAR PRIMARY KEY,
	seq      BIGINT NOT NULL DEFAULT nextval('journal_seq'),
	at       TIMESTAMP NOT NULL,
	document VARCHAR NOT NULL,
	kind     VARCHAR NOT NULL,
	map_id   VARCHAR,
	subject  VARCHAR,
	type     VARCHAR
)`,
}

// Entry is one recorded engine mutation.
type Entry struct {
	ID       string    `json:"id" doc:"Entry id"`
	Seq      int64     `json:"seq" doc:"Insertion order"`
	At       time.Time `json:"at" doc:"When the mutation happened"`
	Document string    `json:"document" doc:"Document the engine belongs to" example:"amsterdam"`
	Kind     string    `json:"kind" doc:"Mutation kind" example:"layer.added"`
	MapID    string    `json:"mapId,omitempty" doc:"Engine instance id"`
	Subject  string    `json:"subject,omitempty" doc:"Source, layer, marker or container id" example:"buildings"`
	Type     string    `json:"type,omitempty" doc:"Source or layer type" example:"line"`
}

// Journal appends engine mutations to the journal table.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// NewJournal creates the journal table if needed.
func NewJournal(ctx context.Context, db *sql.DB) (*Journal, error) {
	for _, stmt := range journalSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("creating journal table: %w", err)
		}
	}
	return &Journal{db: db, now: time.Now}, nil
}

// Record appends one mutation.
func (j *Journal) Record(ctx context.Context, document string, ev engine.Event) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO journal (id, at, document, kind, map_id, subject, type) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), j.now().UTC(), document, string(ev.Kind), ev.MapID, ev.ID, ev.Type,
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", ev.Kind, err)
	}
	return nil
}

// Recent returns a page of entries, newest first, and the total count.
func (j *Journal) Recent(ctx context.Context, offset, limit int) ([]Entry, int, error) {
	var total int
	if err := j.db.QueryRowContext(ctx, `SELECT count(*) FROM journal`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting journal: %w", err)
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, seq, at, document, kind, map_id, subject, type FROM journal ORDER BY seq DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("reading journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var mapID, subject, typ sql.NullString
		if err := rows.Scan(&e.ID, &e.Seq, &e.At, &e.Document, &e.Kind, &mapID, &subject, &typ); err != nil {
			return nil, 0, err
		}
		e.MapID, e.Subject, e.Type = mapID.String, subject.String, typ.String
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
