// Package history keeps an optional ledger of the outputs produced by
// completed conversion requests.
package history

import (
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/hbomb79/Verto/internal/database"
	"github.com/hbomb79/Verto/pkg/logger"
)

var log = logger.Get("HistoryStore")

const DefaultListLimit = 50

type (
	// Entry is a single saved output of a conversion request.
	Entry struct {
		ID             uuid.UUID `db:"id" json:"id"`
		RequestID      uuid.UUID `db:"request_id" json:"request_id"`
		OperationID    uuid.UUID `db:"operation_id" json:"operation_id"`
		OperationIndex int       `db:"operation_index" json:"operation_index"`
		Name           string    `db:"name" json:"name"`
		Extension      string    `db:"extension" json:"extension"`
		Location       string    `db:"location" json:"location"`
		SizeBytes      int64     `db:"size_bytes" json:"size_bytes"`
		CreatedAt      time.Time `db:"created_at" json:"created_at"`
	}

	Store struct{}
)

func NewStore() *Store { return &Store{} }

// Record inserts the entries provided, assigning each a new identifier. It's
// expected that the caller wraps this in a transaction when recording the
// outputs of a single request.
func (store *Store) Record(db database.Queryable, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	builder := squirrel.
		Insert("conversion_outputs").
		Columns("id", "request_id", "operation_id", "operation_index", "name", "extension", "location", "size_bytes", "created_at").
		PlaceholderFormat(squirrel.Dollar)

	now := time.Now()
	for _, e := range entries {
		builder = builder.Values(uuid.New(), e.RequestID, e.OperationID, e.OperationIndex, e.Name, e.Extension, e.Location, e.SizeBytes, now)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to construct history insert query: %w", err)
	}

	if _, err := db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to record %d history entries: %w", len(entries), err)
	}

	log.Emit(logger.DEBUG, "Recorded %d history entries for request %s\n", len(entries), entries[0].RequestID)
	return nil
}

// List returns the most recently recorded entries, newest first. A limit
// less than one uses DefaultListLimit.
func (store *Store) List(db database.Queryable, limit int) ([]Entry, error) {
	if limit < 1 {
		limit = DefaultListLimit
	}

	return store.selectEntries(db, selectBuilder().OrderBy("created_at DESC", "operation_index ASC").Limit(uint64(limit)))
}

// ListForRequest returns every entry recorded for the request provided, in
// the order they were produced.
func (store *Store) ListForRequest(db database.Queryable, requestID uuid.UUID) ([]Entry, error) {
	return store.selectEntries(db, selectBuilder().Where(squirrel.Eq{"request_id": requestID}).OrderBy("operation_index ASC"))
}

func (store *Store) selectEntries(db database.Queryable, builder squirrel.SelectBuilder) ([]Entry, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct history select query: %w", err)
	}

	results := make([]Entry, 0)
	if err := db.Select(&results, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select history entries: %w", err)
	}

	return results, nil
}

func selectBuilder() squirrel.SelectBuilder {
	return squirrel.
		Select("id", "request_id", "operation_id", "operation_index", "name", "extension", "location", "size_bytes", "created_at").
		From("conversion_outputs").
		PlaceholderFormat(squirrel.Dollar)
}
