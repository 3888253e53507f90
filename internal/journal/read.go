package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ringtrail/internal/catalog"
	"github.com/roach88/ringtrail/internal/ring"
	"github.com/roach88/ringtrail/internal/telemetry"
	"github.com/roach88/ringtrail/internal/txn"
)

// Entry is one stored event.
type Entry struct {
	ID          string
	Seq         int64
	Kind        string
	Variant     string
	Transaction txn.Transaction
	ContractID  ring.ContractKey
	Payload     []byte

	// Event is the decoded payload. Nil for raw reads.
	Event catalog.Event
}

const selectEntries = `
	SELECT id, seq, kind, variant, transaction_id, contract_id, payload
	FROM events
`

// ReadTransaction returns the events of tx ordered by seq.
// Returns an empty slice (not nil) when tx is unknown.
func (j *Journal) ReadTransaction(ctx context.Context, tx txn.Transaction) ([]Entry, error) {
	return j.query(ctx, true, selectEntries+`WHERE transaction_id = ? ORDER BY seq ASC`, string(tx))
}

// ReadContract returns the lifecycle events of key ordered by seq.
func (j *Journal) ReadContract(ctx context.Context, key ring.ContractKey) ([]Entry, error) {
	return j.query(ctx, true, selectEntries+`WHERE contract_id = ? ORDER BY seq ASC`, string(key))
}

// ReadAll returns every event ordered by seq.
func (j *Journal) ReadAll(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, true, selectEntries+`ORDER BY seq ASC`)
}

// ReadAllRaw returns every row ordered by seq without decoding payloads.
func (j *Journal) ReadAllRaw(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, false, selectEntries+`ORDER BY seq ASC`)
}

// Read returns the event with the given id.
func (j *Journal) Read(ctx context.Context, id string) (Entry, error) {
	entries, err := j.query(ctx, true, selectEntries+`WHERE id = ?`, id)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return entries[0], nil
}

func (j *Journal) query(ctx context.Context, decode bool, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if decode {
			if e.Event, err = Decode(e); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		txID       sql.NullString
		contractID sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.Seq, &e.Kind, &e.Variant, &txID, &contractID, &e.Payload); err != nil {
		return Entry{}, fmt.Errorf("scan event: %w", err)
	}
	e.Transaction = txn.Transaction(txID.String)
	e.ContractID = ring.ContractKey(contractID.String)
	return e, nil
}

// Decode decodes the payload of e.
func Decode(e Entry) (catalog.Event, error) {
	ev, err := catalog.DecodeEvent(e.Payload)
	if err != nil {
		telemetry.ObserveDecodeError(err)
		return nil, fmt.Errorf("decode event %s (seq %d): %w", e.ID, e.Seq, err)
	}
	return ev, nil
}
