package update

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
	"github.com/adamancini/vsupdater/internal/types"
)

func newTestTransaction(t *testing.T) *transaction {
	t.Helper()
	root := t.TempDir()
	return &transaction{
		runID:      "test",
		mode:       types.ModeManual,
		livePath:   filepath.Join(root, "server"),
		backupPath: filepath.Join(root, "server_backup"),
		state:      types.StateRotating,
		logger:     zerolog.Nop(),
	}
}

func TestTransaction_RotateMovesInstallation(t *testing.T) {
	tx := newTestTransaction(t)
	writeFile(t, filepath.Join(tx.livePath, "server.sh"), "#!/bin/sh\n", 0755)
	writeFile(t, filepath.Join(tx.backupPath, "stale"), "old backup", 0644)

	if err := tx.rotate(); err != nil {
		t.Fatalf("rotate() error = %v", err)
	}
	if !tx.rotated {
		t.Error("rotated flag not set")
	}

	entries, err := os.ReadDir(tx.livePath)
	if err != nil {
		t.Fatalf("live dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("live dir should be empty, has %d entries", len(entries))
	}

	backup := snapshotTree(t, tx.backupPath)
	if _, ok := backup["server.sh"]; !ok {
		t.Error("server.sh not moved to backup")
	}
	if _, ok := backup["stale"]; ok {
		t.Error("previous backup was not discarded")
	}
}

func TestTransaction_RotateMissingInstallation(t *testing.T) {
	tx := newTestTransaction(t)

	err := tx.rotate()
	if !vserrors.IsErrorCode(err, vserrors.ErrInstallationMissing) {
		t.Fatalf("rotate() error = %v, want INSTALLATION_MISSING", err)
	}
	if tx.rotated {
		t.Error("rotated flag set without rotation")
	}
}

func TestTransaction_RotateRefusesOverlappingBackup(t *testing.T) {
	tests := []struct {
		name   string
		backup func(live string) string
	}{
		{"backup is parent", filepath.Dir},
		{"backup inside live", func(live string) string { return filepath.Join(live, "old") }},
		{"backup is live", func(live string) string { return live }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newTestTransaction(t)
			tx.backupPath = tt.backup(tx.livePath)
			writeFile(t, filepath.Join(tx.livePath, "server.sh"), "#!/bin/sh\n", 0755)
			writeFile(t, filepath.Join(tx.livePath, "old", "keep"), "x", 0644)
			before := snapshotTree(t, filepath.Dir(tx.livePath))

			err := tx.rotate()
			if !vserrors.IsErrorCode(err, vserrors.ErrConfigValid) {
				t.Fatalf("rotate() error = %v, want CONFIG_INVALID", err)
			}
			if tx.rotated {
				t.Error("rotated flag set without rotation")
			}
			assertSameTree(t, before, snapshotTree(t, filepath.Dir(tx.livePath)))
		})
	}
}

func TestTransaction_RollbackRestoresBackup(t *testing.T) {
	tx := newTestTransaction(t)
	writeFile(t, filepath.Join(tx.livePath, "VintagestoryServer.dll"), "old", 0644)
	before := snapshotTree(t, tx.livePath)

	if err := tx.rotate(); err != nil {
		t.Fatalf("rotate() error = %v", err)
	}
	writeFile(t, filepath.Join(tx.livePath, "VintagestoryServer.dll"), "half written", 0644)

	cause := errors.New("boom")
	err := tx.rollback(cause)
	if !errors.Is(err, cause) {
		t.Errorf("rollback() should wrap the cause, got %v", err)
	}
	if tx.state != types.StateRolledBack {
		t.Errorf("state = %s, want rolled_back", tx.state)
	}
	assertSameTree(t, before, snapshotTree(t, tx.livePath))
}

func TestTransaction_RollbackWithoutRotation(t *testing.T) {
	tx := newTestTransaction(t)
	writeFile(t, filepath.Join(tx.livePath, "keep"), "x", 0644)

	cause := vserrors.New(vserrors.ErrInstallationMissing, "nope")
	err := tx.rollback(cause)
	if err != error(cause) {
		t.Errorf("rollback() = %v, want the cause unchanged", err)
	}
	if tx.state != types.StateRolledBack {
		t.Errorf("state = %s, want rolled_back", tx.state)
	}
	if _, err := os.Stat(filepath.Join(tx.livePath, "keep")); err != nil {
		t.Error("live path touched without rotation")
	}
}

func TestTransaction_RollbackFailure(t *testing.T) {
	tx := newTestTransaction(t)
	tx.state = types.StateExtracting
	tx.rotated = true
	writeFile(t, filepath.Join(tx.livePath, "partial"), "x", 0644)

	cause := vserrors.New(vserrors.ErrArchiveExtractionFailed, "corrupt")
	err := tx.rollback(cause)

	if !vserrors.IsErrorCode(err, vserrors.ErrRollbackFailed) {
		t.Fatalf("rollback() error = %v, want ROLLBACK_FAILED", err)
	}
	if !vserrors.IsErrorCode(err, vserrors.ErrArchiveExtractionFailed) {
		t.Error("original cause lost")
	}
	if tx.state != types.StateRollingBack {
		t.Errorf("state = %s, want rolling_back", tx.state)
	}
	details := vserrors.GetErrorDetails(err)
	if details["backup"] != tx.backupPath {
		t.Errorf("details = %v", details)
	}
}

func TestTransaction_IllegalTransition(t *testing.T) {
	tx := newTestTransaction(t)
	tx.state = types.StateChecking

	err := tx.transition(types.StateRotating)
	if !vserrors.IsErrorCode(err, vserrors.ErrInternal) {
		t.Fatalf("transition() error = %v, want INTERNAL", err)
	}
	if tx.state != types.StateChecking {
		t.Error("state changed on illegal transition")
	}
}

func TestTransaction_PatchPreservesScript(t *testing.T) {
	tx := newTestTransaction(t)
	writeFile(t, filepath.Join(tx.backupPath, "server.sh"), "DATAPATH=/srv/data\n", 0700)
	writeFile(t, filepath.Join(tx.livePath, "server.sh"), "stock\n", 0755)
	want := snapshotTree(t, tx.backupPath)["server.sh"]

	if err := tx.patch(); err != nil {
		t.Fatalf("patch() error = %v", err)
	}
	got := snapshotTree(t, tx.livePath)["server.sh"]
	if got != want {
		t.Errorf("server.sh = %+v, want %+v", got, want)
	}
}

func TestTransaction_PatchWithoutScript(t *testing.T) {
	tx := newTestTransaction(t)
	if err := os.MkdirAll(tx.backupPath, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(tx.livePath, "server.sh"), "stock\n", 0755)

	if err := tx.patch(); err != nil {
		t.Fatalf("patch() error = %v", err)
	}
	if snapshotTree(t, tx.livePath)["server.sh"].Content != "stock\n" {
		t.Error("stock script should be left alone")
	}
}
