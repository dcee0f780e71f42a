package skiff

import "fmt"

// checkpointManager anchors the engine state at the last confirmed
// sequence. At most one checkpoint is live at a time, labeled cp_<seq>.
// The checkpoint is a serialized engine image: rollback restores the image,
// establish replaces it. Holding bytes instead of an open SQL savepoint
// leaves the engine free of long-lived transactions, so persistence can
// serialize at any point between transitions.
type checkpointManager struct {
	engine Engine
	image  []byte
	seq    uint64
	debug  *DebugLogger
}

func newCheckpointManager(engine Engine, debug *DebugLogger) *checkpointManager {
	return &checkpointManager{engine: engine, debug: debug}
}

// establishAt releases the previous checkpoint, if any, and captures the
// current engine state as the checkpoint for seq.
func (c *checkpointManager) establishAt(seq uint64) error {
	image, err := c.engine.Serialize()
	if err != nil {
		return fmt.Errorf("checkpoint: establish %s: %w", label(seq), err)
	}

	if c.seq > 0 {
		c.debug.Log("CHECKPOINT release %s", label(c.seq))
	}
	c.image = image
	c.seq = seq
	c.debug.Log("CHECKPOINT establish %s (%d bytes)", label(seq), len(image))
	return nil
}

// rollback restores the engine to the checkpoint state. The checkpoint
// stays live so later replays keep their anchor. Returns errNoCheckpoint
// when none is established.
func (c *checkpointManager) rollback() error {
	if c.image == nil {
		return errNoCheckpoint
	}
	if err := c.engine.Deserialize(c.image); err != nil {
		return fmt.Errorf("checkpoint: rollback to %s: %w", label(c.seq), err)
	}
	c.debug.Log("CHECKPOINT rollback to %s", label(c.seq))
	return nil
}

// drop discards the checkpoint without touching engine state.
func (c *checkpointManager) drop() {
	if c.seq > 0 {
		c.debug.Log("CHECKPOINT drop %s", label(c.seq))
	}
	c.image = nil
	c.seq = 0
}

// savepointSeq reports the seq the live checkpoint was taken at, 0 if none.
func (c *checkpointManager) savepointSeq() uint64 {
	return c.seq
}

func label(seq uint64) string {
	return fmt.Sprintf("cp_%d", seq)
}
