// Package journal persists an append-only record of committed pool
// operations. Writes are best-effort and happen after the in-memory commit;
// the pool state never depends on the journal.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry is one committed pool operation.
type Entry struct {
	ID        uuid.UUID         `json:"id"`
	At        time.Time         `json:"at"`
	Operation string            `json:"operation"`
	Account   string            `json:"account"`
	Fields    map[string]string `json:"fields"`
}

// NewEntry stamps an entry with a fresh id and the current time.
func NewEntry(operation, account string, fields map[string]string) Entry {
	return Entry{
		ID:        uuid.New(),
		At:        time.Now().UTC(),
		Operation: operation,
		Account:   account,
		Fields:    fields,
	}
}

type Journal struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewJournal(db *sql.DB, logger *zap.SugaredLogger) *Journal {
	return &Journal{
		db:     db,
		logger: logger,
	}
}

func (j *Journal) Append(ctx context.Context, entry Entry) error {
	fieldsJSON, err := json.Marshal(entry.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal journal fields: %w", err)
	}

	query := `
		INSERT INTO pool_operations (id, at, operation, account, fields)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	_, err = j.db.ExecContext(ctx, query,
		entry.ID,
		entry.At,
		entry.Operation,
		entry.Account,
		fieldsJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	return nil
}

// AccountHistory returns the most recent operations for one account, newest
// first, up to limit.
func (j *Journal) AccountHistory(ctx context.Context, account string, limit int) ([]Entry, error) {
	query := `
		SELECT id, at, operation, account, fields
		FROM pool_operations
		WHERE account = $1
		ORDER BY at DESC
		LIMIT $2
	`

	rows, err := j.db.QueryContext(ctx, query, account, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query account history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var fieldsJSON []byte

		if err := rows.Scan(&entry.ID, &entry.At, &entry.Operation, &entry.Account, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if err := json.Unmarshal(fieldsJSON, &entry.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal fields: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// Record appends without propagating errors; a journal outage must not fail
// the operation it records.
func (j *Journal) Record(ctx context.Context, entry Entry) {
	if err := j.Append(ctx, entry); err != nil && j.logger != nil {
		j.logger.Warnw("journal append failed", "operation", entry.Operation, "account", entry.Account, "error", err)
	}
}

func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}
