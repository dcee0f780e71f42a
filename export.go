package skiff

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// ExportVersion is the current version of the operation log export format.
const ExportVersion = "1.0"

// ExportHeader is the first line of an operation log export.
type ExportHeader struct {
	Version      string    `json:"version"`
	ExportedAt   time.Time `json:"exported_at"`
	ClientID     string    `json:"client_id"`
	ConfirmedSeq uint64    `json:"confirmed_seq"`
	LocalSeq     uint64    `json:"local_seq"`
	Confirmed    int       `json:"confirmed"`
	Pending      int       `json:"pending"`
}

// ExportOp is one operation line in an export.
type ExportOp struct {
	Status string `json:"status"`
	Operation
}

// Export line statuses.
const (
	ExportStatusConfirmed = "confirmed"
	ExportStatusPending   = "pending"
)

// DumpOps streams the operation log as JSON Lines: a header object, then
// one line per confirmed operation in seq order, then one line per pending
// operation in localSeq order. The stream is written under the database
// lock so it captures a consistent view.
func (db *DB) DumpOps(w io.Writer) error {
	if db == nil || db.engine == nil {
		return ErrNotInitialized
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return ErrClosed
	}

	pending, confirmed, localSeq := db.oplog.snapshot()

	enc := json.NewEncoder(w)
	header := ExportHeader{
		Version:      ExportVersion,
		ExportedAt:   time.Now().UTC(),
		ClientID:     db.clientID,
		ConfirmedSeq: db.recon.confirmedSeq,
		LocalSeq:     localSeq,
		Confirmed:    len(confirmed),
		Pending:      len(pending),
	}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("skiff: encode export header: %w", err)
	}

	for _, op := range confirmed {
		op := op
		if err := enc.Encode(ExportOp{Status: ExportStatusConfirmed, Operation: op}); err != nil {
			return fmt.Errorf("skiff: encode operation %s: %w", op.ID, err)
		}
	}
	for _, op := range pending {
		op := op
		if err := enc.Encode(ExportOp{Status: ExportStatusPending, Operation: op}); err != nil {
			return fmt.Errorf("skiff: encode operation %s: %w", op.ID, err)
		}
	}
	return nil
}

// ExportImage writes the serialized engine to destPath. The bytes are the
// same image persisted to the blob store, so the file can seed another
// database or be archived as a point-in-time copy.
func (db *DB) ExportImage(destPath string) error {
	if db == nil || db.engine == nil {
		return ErrNotInitialized
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}

	image := db.freshImage()
	if image == nil {
		var err error
		image, err = db.engine.Serialize()
		if err != nil {
			db.mu.Unlock()
			return fmt.Errorf("skiff: serialize for export: %w", err)
		}
	}
	db.mu.Unlock()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("skiff: create export file: %w", err)
	}

	if _, err := dest.Write(image); err != nil {
		dest.Close()
		_ = os.Remove(destPath)
		return fmt.Errorf("skiff: write export file: %w", err)
	}
	if err := dest.Sync(); err != nil {
		dest.Close()
		return fmt.Errorf("skiff: sync export file: %w", err)
	}
	return dest.Close()
}
