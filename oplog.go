package skiff

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// opLog is the in-memory and persisted record of every mutation: the
// pending queue (unconfirmed, ordered by localSeq) and the confirmed log
// (ordered by seq). Row persistence goes through the engine's _ops and
// _meta tables so the log travels inside serialized engine images.
//
// opLog is not self-synchronized; the owning DB serializes access.
type opLog struct {
	engine    Engine
	pending   []Operation
	confirmed []Operation
	localSeq  uint64
}

func newOpLog(engine Engine) *opLog {
	return &opLog{engine: engine}
}

// load rebuilds the pending queue and local sequence counter from the
// engine. Confirmed state starts empty; the authority's history re-fills it
// on the next join.
func (l *opLog) load() error {
	res, err := l.engine.Query(
		`SELECT value FROM _meta WHERE key = 'local_seq_counter'`)
	if err != nil {
		return fmt.Errorf("oplog: read counter: %w", err)
	}
	if len(res.Rows) > 0 {
		raw, _ := res.Rows[0]["value"].(string)
		counter, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("oplog: parse counter %q: %w", raw, err)
		}
		l.localSeq = counter
	}

	res, err = l.engine.Query(
		`SELECT id, seq, local_seq, table_name, op_type, data, where_clause, client_id
		 FROM _ops WHERE confirmed = 0 ORDER BY local_seq ASC`)
	if err != nil {
		return fmt.Errorf("oplog: read pending rows: %w", err)
	}

	l.pending = l.pending[:0]
	for _, row := range res.Rows {
		op, err := rowToOperation(row)
		if err != nil {
			return fmt.Errorf("oplog: decode pending row: %w", err)
		}
		l.pending = append(l.pending, op)
	}
	return nil
}

// nextLocalSeq increments and persists the local sequence counter.
func (l *opLog) nextLocalSeq() (uint64, error) {
	next := l.localSeq + 1
	if err := l.writeCounter(next); err != nil {
		return 0, err
	}
	l.localSeq = next
	return next, nil
}

func (l *opLog) writeCounter(value uint64) error {
	_, err := l.engine.Exec(
		`INSERT OR REPLACE INTO _meta (key, value) VALUES ('local_seq_counter', ?)`,
		strconv.FormatUint(value, 10))
	if err != nil {
		return fmt.Errorf("oplog: write counter: %w", err)
	}
	return nil
}

// appendPending adds a freshly created local operation to the queue and
// persists its row.
func (l *opLog) appendPending(op Operation) error {
	if err := l.writeRow(op, false); err != nil {
		return err
	}
	l.pending = append(l.pending, op)
	return nil
}

// findPendingByID returns the pending operation with the given id, if any.
func (l *opLog) findPendingByID(id string) (Operation, bool) {
	for i := range l.pending {
		if l.pending[i].ID == id {
			return l.pending[i], true
		}
	}
	return Operation{}, false
}

// confirmByIDAt removes the pending operation with the given id, stamps the
// authority-assigned seq on it, and appends it to the confirmed log. The
// persisted row flips to confirmed in place (insert-or-replace by id).
func (l *opLog) confirmByIDAt(id string, seq uint64) (Operation, bool, error) {
	idx := -1
	for i := range l.pending {
		if l.pending[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Operation{}, false, nil
	}

	op := l.pending[idx]
	op.Seq = seq
	if err := l.writeRow(op, true); err != nil {
		return Operation{}, false, err
	}

	l.pending = append(l.pending[:idx], l.pending[idx+1:]...)
	l.confirmed = append(l.confirmed, op)
	return op, true, nil
}

// appendConfirmed records a remote confirmed operation.
func (l *opLog) appendConfirmed(op Operation) error {
	if err := l.writeRow(op, true); err != nil {
		return err
	}
	l.confirmed = append(l.confirmed, op)
	return nil
}

// iteratePending returns a copy of the pending queue in localSeq order.
func (l *opLog) iteratePending() []Operation {
	out := make([]Operation, len(l.pending))
	copy(out, l.pending)
	return out
}

func (l *opLog) pendingCount() int   { return len(l.pending) }
func (l *opLog) confirmedCount() int { return len(l.confirmed) }

// rewriteAfterRollback restores _ops rows and the counter that a checkpoint
// rollback rewound: every pending row, plus confirmed rows newer than the
// restored checkpoint seq.
func (l *opLog) rewriteAfterRollback(restoredSeq uint64) error {
	if err := l.writeCounter(l.localSeq); err != nil {
		return err
	}
	for i := range l.confirmed {
		if l.confirmed[i].Seq > restoredSeq {
			if err := l.writeRow(l.confirmed[i], true); err != nil {
				return err
			}
		}
	}
	for i := range l.pending {
		if err := l.writeRow(l.pending[i], false); err != nil {
			return err
		}
	}
	return nil
}

// snapshot returns the current log contents for stats and export.
func (l *opLog) snapshot() ([]Operation, []Operation, uint64) {
	pending := make([]Operation, len(l.pending))
	copy(pending, l.pending)
	confirmed := make([]Operation, len(l.confirmed))
	copy(confirmed, l.confirmed)
	return pending, confirmed, l.localSeq
}

func (l *opLog) writeRow(op Operation, confirmed bool) error {
	data, where, err := encodePayload(&op)
	if err != nil {
		return err
	}

	confirmedFlag := 0
	if confirmed {
		confirmedFlag = 1
	}

	_, err = l.engine.Exec(
		`INSERT OR REPLACE INTO _ops
		 (id, seq, local_seq, table_name, op_type, data, where_clause, client_id, confirmed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.Seq, op.LocalSeq, op.Table, string(op.Type),
		data, where, op.ClientID, confirmedFlag)
	if err != nil {
		return fmt.Errorf("oplog: write row %s: %w", op.ID, err)
	}
	return nil
}

func encodePayload(op *Operation) (data, where any, err error) {
	if len(op.Data) > 0 {
		b, err := json.Marshal(op.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("oplog: encode data for %s: %w", op.ID, err)
		}
		data = string(b)
	}
	if len(op.Where) > 0 {
		b, err := json.Marshal(op.Where)
		if err != nil {
			return nil, nil, fmt.Errorf("oplog: encode where for %s: %w", op.ID, err)
		}
		where = string(b)
	}
	return data, where, nil
}

func rowToOperation(row map[string]any) (Operation, error) {
	op := Operation{}
	op.ID, _ = row["id"].(string)
	op.Table, _ = row["table_name"].(string)
	op.ClientID, _ = row["client_id"].(string)

	if t, ok := row["op_type"].(string); ok {
		op.Type = OpType(t)
	}
	if seq, ok := row["seq"].(int64); ok {
		op.Seq = uint64(seq)
	}
	if localSeq, ok := row["local_seq"].(int64); ok {
		op.LocalSeq = uint64(localSeq)
	}

	if raw, ok := row["data"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &op.Data); err != nil {
			return op, fmt.Errorf("decode data: %w", err)
		}
	}
	if raw, ok := row["where_clause"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &op.Where); err != nil {
			return op, fmt.Errorf("decode where: %w", err)
		}
	}
	return op, nil
}
