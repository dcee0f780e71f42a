package skiff

import "testing"

func TestCheckpoint_EstablishAndRollback(t *testing.T) {
	engine := newTestEngine(t)
	cp := newCheckpointManager(engine, nil)

	if _, err := engine.Exec(`CREATE TABLE t (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := engine.Exec(`INSERT INTO t (id) VALUES ('anchored')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := cp.establishAt(4); err != nil {
		t.Fatalf("establishAt: %v", err)
	}
	if got := cp.savepointSeq(); got != 4 {
		t.Errorf("savepointSeq = %d, want 4", got)
	}

	if _, err := engine.Exec(`INSERT INTO t (id) VALUES ('doomed')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := cp.rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	res, err := engine.Query(`SELECT id FROM t ORDER BY id`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0]["id"] != "anchored" {
		t.Errorf("rows after rollback = %v, want [anchored]", res.Rows)
	}

	// The anchor survives the rollback, so it can be replayed onto again.
	if err := cp.rollback(); err != nil {
		t.Errorf("second rollback: %v", err)
	}
	if got := cp.savepointSeq(); got != 4 {
		t.Errorf("savepointSeq after rollback = %d, want 4", got)
	}
}

func TestCheckpoint_RollbackWithoutAnchor(t *testing.T) {
	cp := newCheckpointManager(newTestEngine(t), nil)
	if err := cp.rollback(); err != errNoCheckpoint {
		t.Errorf("rollback = %v, want errNoCheckpoint", err)
	}
}

func TestCheckpoint_EstablishReplacesAnchor(t *testing.T) {
	engine := newTestEngine(t)
	cp := newCheckpointManager(engine, nil)

	if _, err := engine.Exec(`CREATE TABLE t (id TEXT PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if err := cp.establishAt(1); err != nil {
		t.Fatalf("establishAt(1): %v", err)
	}

	if _, err := engine.Exec(`INSERT INTO t (id) VALUES ('kept')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := cp.establishAt(2); err != nil {
		t.Fatalf("establishAt(2): %v", err)
	}
	if got := cp.savepointSeq(); got != 2 {
		t.Errorf("savepointSeq = %d, want 2", got)
	}

	// Rolling back lands on the newer anchor, not the original.
	if err := cp.rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	res, err := engine.Query(`SELECT count(*) AS n FROM t`)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if res.Rows[0]["n"] != int64(1) {
		t.Errorf("count = %v, want 1", res.Rows[0]["n"])
	}
}

func TestCheckpoint_Drop(t *testing.T) {
	engine := newTestEngine(t)
	cp := newCheckpointManager(engine, nil)

	if err := cp.establishAt(3); err != nil {
		t.Fatalf("establishAt: %v", err)
	}
	cp.drop()

	if got := cp.savepointSeq(); got != 0 {
		t.Errorf("savepointSeq after drop = %d, want 0", got)
	}
	if err := cp.rollback(); err != errNoCheckpoint {
		t.Errorf("rollback after drop = %v, want errNoCheckpoint", err)
	}
}
