package skiff

import "context"

// Transport dials a room on the authority. Implementations deliver
// authority-ordered inputs through the registered handlers; see the wsroom
// package for the WebSocket implementation.
type Transport interface {
	Connect(ctx context.Context, params ConnectParams) (Conn, error)
}

// ConnectParams carries everything a transport needs to join a room.
type ConnectParams struct {
	URL      string
	Room     string
	Handlers Handlers
}

// Handlers are the transport-level lifecycle hooks. The transport must
// invoke them sequentially: no two handler calls may overlap.
type Handlers struct {
	// OnCreate fires when this client was the first member of the room.
	OnCreate func()
	// OnJoin delivers the room snapshot and the historical inputs in seq
	// order. Fires once per successful connect.
	OnJoin func(snapshot []byte, inputs []Input)
	// OnInput delivers one authority-ordered input. Deliveries arrive in
	// strictly increasing seq order.
	OnInput func(input Input)
	// OnDisconnect fires when the connection drops.
	OnDisconnect func()
	// OnReconnect fires when the transport re-establishes the connection.
	OnReconnect func()
}

// Conn is a live room connection.
type Conn interface {
	// Send ships an envelope to the authority, which assigns a seq and
	// rebroadcasts it to all room members including the sender.
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// inputToOperation unwraps an input's envelope into a confirmed operation.
// Inputs carrying an unrecognized envelope type are skipped for
// forward-compatibility.
func inputToOperation(input Input) (Operation, bool) {
	if input.Data.Type != EnvelopeOp || input.Data.Operation == nil {
		return Operation{}, false
	}
	op := input.Data.Operation.Clone()
	op.Seq = input.Seq
	return op, true
}
