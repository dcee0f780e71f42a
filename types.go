package skiff

import (
	"fmt"
	"time"
)

// Operation is a replayable mutation record. Operations are born pending on
// the client that created them and become confirmed once the authority
// assigns them a global sequence number.
type Operation struct {
	ID       string         `json:"id"`
	ClientID string         `json:"client_id"`
	LocalSeq uint64         `json:"local_seq"`
	Seq      uint64         `json:"seq,omitempty"`
	Table    string         `json:"table"`
	Type     OpType         `json:"type"`
	Data     map[string]any `json:"data,omitempty"`
	Where    map[string]any `json:"where,omitempty"`
}

// Pending reports whether the operation still lacks an authority-assigned
// sequence number.
func (o *Operation) Pending() bool {
	return o.Seq == 0
}

// Clone returns a deep copy of the operation. Payload maps are copied so
// that applying or persisting a clone never aliases the original.
func (o *Operation) Clone() Operation {
	c := *o
	if o.Data != nil {
		c.Data = make(map[string]any, len(o.Data))
		for k, v := range o.Data {
			c.Data[k] = v
		}
	}
	if o.Where != nil {
		c.Where = make(map[string]any, len(o.Where))
		for k, v := range o.Where {
			c.Where[k] = v
		}
	}
	return c
}

// OpType classifies the mutation an operation carries.
type OpType string

const (
	OpInsert OpType = "INSERT"
	OpUpdate OpType = "UPDATE"
	OpDelete OpType = "DELETE"
)

// ValidOpTypes returns all valid operation types.
func ValidOpTypes() []OpType {
	return []OpType{OpInsert, OpUpdate, OpDelete}
}

// IsValid checks if the operation type is one of INSERT, UPDATE, DELETE.
func (t OpType) IsValid() bool {
	for _, valid := range ValidOpTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// OperationID builds the globally unique id for an operation created by
// clientID at localSeq. Uniqueness rests on the clientID+localSeq pair; the
// wallclock suffix aids debugging only.
func OperationID(clientID string, localSeq uint64, now time.Time) string {
	return fmt.Sprintf("%s_%d_%d", clientID, localSeq, now.UnixMilli())
}

// Envelope is the wire frame around an operation. Envelopes with a type
// other than EnvelopeOp are ignored by both sides.
type Envelope struct {
	Type      string     `json:"type"`
	Operation *Operation `json:"operation,omitempty"`
}

// EnvelopeOp is the envelope type carrying an operation.
const EnvelopeOp = "op"

// Input is an authority-ordered delivery: the envelope a client sent plus
// the global sequence number the authority assigned to it.
type Input struct {
	Seq  uint64   `json:"seq"`
	Data Envelope `json:"data"`
}

// Callbacks are user hooks fired after the corresponding state transition
// and persistence have completed. All fields are optional.
type Callbacks struct {
	// OnRoomCreate fires when this client was the first to open the room.
	OnRoomCreate func()
	// OnConnect fires after join, hydration, and pending flush. The snapshot
	// bytes are opaque; ops holds the confirmed operations applied during
	// hydration in seq order.
	OnConnect func(snapshot []byte, ops []Operation)
	// OnInput fires after a remote confirmed operation has been applied.
	// Locally-originated confirmations do not fire it.
	OnInput func(op Operation)
	// OnDisconnect fires when the transport is lost.
	OnDisconnect func()
}

// Result holds the outcome of a local read-only query.
type Result struct {
	Columns      []string         `json:"columns"`
	Rows         []map[string]any `json:"rows"`
	RowsAffected int64            `json:"rows_affected"`
}

// Stats describes the sync state of a database.
type Stats struct {
	ClientID       string `json:"client_id"`
	ConfirmedSeq   uint64 `json:"confirmed_seq"`
	SavepointSeq   uint64 `json:"savepoint_seq"`
	LocalSeq       uint64 `json:"local_seq"`
	PendingCount   int    `json:"pending_count"`
	ConfirmedCount int    `json:"confirmed_count"`
	GapEvents      uint64 `json:"gap_events"`
	Online         bool   `json:"online"`
}

// Blob store key suffixes, namespaced under the database name.
const (
	blobKeyDB       = "db_blob"
	blobKeyClientID = "client_id"
)
