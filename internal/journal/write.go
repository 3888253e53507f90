package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/ringtrail/internal/catalog"
)

// Append stores ev and reports whether a new row was written.
// Uses ON CONFLICT(id) DO NOTHING: a contract change already stored is
// ignored. Peer changes and controller responses are keyed by their seq as
// well as their bytes, so every emission gets its own row.
func (j *Journal) Append(ctx context.Context, ev catalog.Event) (bool, error) {
	payload, err := catalog.EncodeEvent(ev)
	if err != nil {
		return false, fmt.Errorf("append: %w", err)
	}
	seq := j.clock.Next()
	id := catalog.RecordID(ev, payload, seq)

	var txID, contractID sql.NullString
	if tx, ok := catalog.TransactionOf(ev); ok {
		txID = sql.NullString{String: string(tx), Valid: true}
	}
	if cc, ok := ev.(*catalog.ContractChange); ok {
		contractID = sql.NullString{String: string(cc.ContractID), Valid: true}
	}

	res, err := j.db.ExecContext(ctx, `
		INSERT INTO events
		(id, seq, kind, variant, transaction_id, contract_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		id,
		seq,
		ev.EventKind(),
		catalog.Variant(ev),
		txID,
		contractID,
		payload,
	)
	if err != nil {
		return false, fmt.Errorf("append %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append %s: %w", id, err)
	}
	return n > 0, nil
}

// Emit implements eventbus.Sink.
func (j *Journal) Emit(ctx context.Context, ev catalog.Event) error {
	_, err := j.Append(ctx, ev)
	return err
}
