package skiff

import "log"

// reconcileResult describes what a confirmed arrival did to local state.
type reconcileResult struct {
	// ignored: duplicate or malformed delivery; nothing changed.
	ignored bool
	// local: the arrival confirmed one of this client's own pending ops.
	local bool
	// replayed: a rollback-replay ran to reorder pending ops behind it.
	replayed bool
	// gap: the arrival skipped ahead of the expected sequence.
	gap bool
	// advanced: confirmedSeq moved.
	advanced bool
}

// reconciler accepts authority-ordered operations and converges local state
// onto the global order. It confirms locally-originated pendings in place,
// applies remote operations, and when a remote operation lands while
// pendings exist it rolls back to the checkpoint and replays the queue so
// the remote effect sorts before the optimistic ones.
//
// The reconciler never returns an error to the transport: apply and
// checkpoint failures are logged and swallowed so a malformed or early
// operation cannot stall the stream.
type reconciler struct {
	engine       Engine
	oplog        *opLog
	checkpoint   *checkpointManager
	logger       *log.Logger
	debug        *DebugLogger
	confirmedSeq uint64
	gapEvents    uint64
}

func newReconciler(engine Engine, oplog *opLog, checkpoint *checkpointManager, logger *log.Logger, debug *DebugLogger) *reconciler {
	return &reconciler{
		engine:     engine,
		oplog:      oplog,
		checkpoint: checkpoint,
		logger:     logger,
		debug:      debug,
	}
}

// handle processes one confirmed operation from the transport.
func (r *reconciler) handle(op Operation) reconcileResult {
	r.debug.LogOp("reconcile", &op)

	if op.Seq == 0 {
		r.logger.Printf("WARNING: dropping unsequenced operation %s", op.ID)
		return reconcileResult{ignored: true}
	}

	expected := r.confirmedSeq + 1
	_, isLocal := r.oplog.findPendingByID(op.ID)

	switch {
	case op.Seq <= r.confirmedSeq:
		// Duplicate delivery. Already incorporated; drop without touching
		// engine state.
		r.debug.Log("RECONCILE duplicate: seq=%d confirmed=%d id=%s", op.Seq, r.confirmedSeq, op.ID)
		return reconcileResult{ignored: true}

	case op.Seq == expected && isLocal:
		// Our own op came back in order. The optimistic state already
		// reflects it, so only the bookkeeping moves.
		if _, ok, err := r.oplog.confirmByIDAt(op.ID, op.Seq); err != nil {
			r.logger.Printf("WARNING: confirm %s: %v", op.ID, err)
		} else if !ok {
			r.logger.Printf("WARNING: pending op %s vanished during confirm", op.ID)
		}
		r.confirmedSeq = op.Seq
		r.establish()
		r.debug.Log("RECONCILE confirmed local: seq=%d id=%s", op.Seq, op.ID)
		return reconcileResult{local: true, advanced: true}

	case op.Seq == expected:
		// Remote op in order. With pendings queued, the optimistic state
		// has them sorted before the remote op; the authority says the
		// remote op comes first, so rebuild from the checkpoint.
		if err := r.oplog.appendConfirmed(op); err != nil {
			r.logger.Printf("WARNING: record confirmed %s: %v", op.ID, err)
		}
		r.confirmedSeq = op.Seq

		replayed := false
		if r.oplog.pendingCount() > 0 {
			r.rollbackReplay(op)
			replayed = true
		} else {
			r.apply(&op)
		}
		r.establish()
		r.debug.Log("RECONCILE applied remote: seq=%d id=%s replayed=%t", op.Seq, op.ID, replayed)
		return reconcileResult{replayed: replayed, advanced: true}

	default:
		// Gap ahead: sequences are missing between confirmedSeq and op.seq.
		// Best effort: incorporate the op and jump, but leave the
		// checkpoint anchor where it is; anchors stay gap-free.
		r.gapEvents++
		r.logger.Printf("WARNING: sequence gap: got seq=%d, expected %d; applying anyway", op.Seq, expected)

		if isLocal {
			if _, ok, err := r.oplog.confirmByIDAt(op.ID, op.Seq); err != nil {
				r.logger.Printf("WARNING: confirm %s: %v", op.ID, err)
			} else if !ok {
				r.logger.Printf("WARNING: pending op %s vanished during confirm", op.ID)
			}
			r.confirmedSeq = op.Seq
			return reconcileResult{gap: true, local: true, advanced: true}
		}

		if err := r.oplog.appendConfirmed(op); err != nil {
			r.logger.Printf("WARNING: record confirmed %s: %v", op.ID, err)
		}
		r.apply(&op)
		r.confirmedSeq = op.Seq
		return reconcileResult{gap: true, advanced: true}
	}
}

// hydrate replays the room history delivered at join time. Inputs arrive in
// ascending seq and each is handled like a live arrival, except that
// rollback-replay and checkpointing are deferred: confirmed effects land in
// seq order first, the pending queue is re-applied once after the final
// input, and a single checkpoint anchors the result. Since no rollback runs,
// the persisted op rows stay intact throughout.
//
// Returns the operations that advanced confirmed state, in order.
func (r *reconciler) hydrate(ops []Operation) []Operation {
	applied := make([]Operation, 0, len(ops))
	for _, op := range ops {
		op := op
		if op.Seq == 0 {
			r.logger.Printf("WARNING: dropping unsequenced operation %s", op.ID)
			continue
		}
		if op.Seq <= r.confirmedSeq {
			continue
		}
		if expected := r.confirmedSeq + 1; op.Seq > expected {
			r.gapEvents++
			r.logger.Printf("WARNING: sequence gap in join history: got seq=%d, expected %d", op.Seq, expected)
		}

		if _, isLocal := r.oplog.findPendingByID(op.ID); isLocal {
			if _, ok, err := r.oplog.confirmByIDAt(op.ID, op.Seq); err != nil {
				r.logger.Printf("WARNING: confirm %s: %v", op.ID, err)
			} else if !ok {
				r.logger.Printf("WARNING: pending op %s vanished during confirm", op.ID)
			}
		} else {
			if err := r.oplog.appendConfirmed(op); err != nil {
				r.logger.Printf("WARNING: record confirmed %s: %v", op.ID, err)
			}
			r.apply(&op)
		}
		r.confirmedSeq = op.Seq
		applied = append(applied, op)
	}

	// Re-assert optimistic effects over the replayed history, then anchor.
	for _, p := range r.oplog.iteratePending() {
		p := p
		r.apply(&p)
	}
	r.establish()
	r.debug.Log("RECONCILE hydrated: %d inputs, %d applied, confirmed=%d", len(ops), len(applied), r.confirmedSeq)
	return applied
}

// rollbackReplay restores the checkpoint state, applies the newly confirmed
// remote op, then re-applies the pending queue in localSeq order. Rows the
// rollback rewound are rewritten from the in-memory log afterwards.
func (r *reconciler) rollbackReplay(op Operation) {
	restored := r.checkpoint.savepointSeq()
	if err := r.checkpoint.rollback(); err != nil {
		// No live checkpoint right after a reload. The restored image
		// already contains the pending effects, and the replay below
		// converges over it.
		r.debug.LogError("rollback", err)
	}

	r.apply(&op)
	for _, p := range r.oplog.iteratePending() {
		p := p
		r.apply(&p)
	}

	if err := r.oplog.rewriteAfterRollback(restored); err != nil {
		r.logger.Printf("WARNING: restore op rows after replay: %v", err)
	}
}

func (r *reconciler) apply(op *Operation) {
	if err := applyOp(r.engine, op); err != nil {
		r.logger.Printf("WARNING: apply %s on %s failed: %v", op.ID, op.Table, err)
		r.debug.LogError("apply", err)
	}
}

func (r *reconciler) establish() {
	if err := r.checkpoint.establishAt(r.confirmedSeq); err != nil {
		r.logger.Printf("WARNING: %v", err)
	}
}
