package sorter

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSession(t *testing.T) (*Session, string, string) {
	t.Helper()
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "in")
	target := filepath.Join(tmpDir, "out")

	writePlainFile(t, filepath.Join(source, "a.jpg"), localDay(2024, 1, 1))
	writePlainFile(t, filepath.Join(source, "b.jpg"), localDay(2024, 1, 2))
	writePlainFile(t, filepath.Join(source, "c.jpg"), localDay(2024, 1, 3))

	return NewSessionWithFs(newDenyFs(), testOptions(source, target)), source, target
}

func TestSession_ProcessBeforeScan(t *testing.T) {
	session := NewSessionWithFs(newDenyFs(), DefaultOptions())
	if _, err := session.Process(context.Background(), All()); !errors.Is(err, ErrNoBatch) {
		t.Errorf("Expected ErrNoBatch, got: %v", err)
	}
	if snap := session.Snapshot(); len(snap.Records) != 0 {
		t.Errorf("Expected empty snapshot, got %d records", len(snap.Records))
	}
}

func TestSession_ScanDoesNotMove(t *testing.T) {
	session, source, _ := newTestSession(t)

	report, err := session.Scan(context.Background(), source)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if report.Moved != 0 || len(report.Failed) != 0 {
		t.Errorf("Expected nothing moved or failed, got %+v", report)
	}

	snap := session.Snapshot()
	if snap.BatchID != report.BatchID {
		t.Errorf("Expected snapshot of batch %s, got %s", report.BatchID, snap.BatchID)
	}
	if len(snap.Records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(snap.Records))
	}
	for i, record := range snap.Records {
		if record.Status != StatusResolved || record.DateSource != SourceModified {
			t.Errorf("Expected record %d resolved from modification time, got %s from %s", i, record.Status, record.DateSource)
		}
		assertExists(t, record.SourcePath)
	}
	if *snap.Records[1].ResolvedDate != (Date{2024, 1, 2}) {
		t.Errorf("Expected 2024-01-02, got %s", snap.Records[1].ResolvedDate)
	}
}

func TestSession_ProcessSelection(t *testing.T) {
	session, source, target := newTestSession(t)
	ctx := context.Background()
	if _, err := session.Scan(ctx, source); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	report, err := session.Process(ctx, Selected(1))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if report.Moved != 1 {
		t.Errorf("Expected 1 moved, got %d", report.Moved)
	}
	assertExists(t, filepath.Join(target, "2024-01-02", "b.jpg"))
	assertExists(t, filepath.Join(source, "a.jpg"))

	snap := session.Snapshot()
	for i, expected := range []Status{StatusResolved, StatusMoved, StatusResolved} {
		if snap.Records[i].Status != expected {
			t.Errorf("Expected record %d status %s, got %s", i, expected, snap.Records[i].Status)
		}
	}

	report, err = session.Process(ctx, All())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if report.Moved != 2 {
		t.Errorf("Expected the remaining 2 records to move, got %d", report.Moved)
	}
	assertExists(t, filepath.Join(target, "2024-01-01", "a.jpg"))
	assertExists(t, filepath.Join(target, "2024-01-03", "c.jpg"))
}

func TestSession_SnapshotIsACopy(t *testing.T) {
	session, source, _ := newTestSession(t)
	if _, err := session.Scan(context.Background(), source); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	snap := session.Snapshot()
	snap.Records[0].Status = StatusFailed
	snap.Records[0].ResolvedDate.Year = 1900

	again := session.Snapshot()
	if again.Records[0].Status != StatusResolved || again.Records[0].ResolvedDate.Year != 2024 {
		t.Errorf("Expected batch to be unaffected by snapshot changes, got %s %s",
			again.Records[0].Status, again.Records[0].ResolvedDate)
	}
}

func TestSession_DryRunPreview(t *testing.T) {
	session, source, target := newTestSession(t)
	ctx := context.Background()
	if _, err := session.Scan(ctx, source); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	session.SetDryRun(true)
	before := hashTree(t, source)
	report, err := session.Process(ctx, Selected(0, 2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !report.DryRun || len(report.Planned) != 2 {
		t.Fatalf("Expected 2 planned moves in a dry run, got %+v", report)
	}
	if report.Planned[1].Target != filepath.Join(target, "2024-01-03", "c.jpg") {
		t.Errorf("Expected c.jpg preview, got %s", report.Planned[1].Target)
	}
	if hashTree(t, source) != before {
		t.Error("Expected dry run to leave the source unchanged")
	}
	assertNotExists(t, target)

	session.SetDryRun(false)
	report, err = session.Process(ctx, Selected(0, 2))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if report.Moved != 2 {
		t.Errorf("Expected 2 moved after the preview, got %d", report.Moved)
	}
	assertExists(t, filepath.Join(target, "2024-01-03", "c.jpg"))
}

func TestSession_ScanReplacesBatch(t *testing.T) {
	session, source, _ := newTestSession(t)
	ctx := context.Background()

	first, err := session.Scan(ctx, source)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	second, err := session.Scan(ctx, source)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if first.BatchID == second.BatchID {
		t.Error("Expected a new batch ID on rescan")
	}
	if session.Snapshot().BatchID != second.BatchID {
		t.Error("Expected the snapshot to show the latest batch")
	}

	if _, err := session.Scan(ctx, filepath.Join(source, "missing")); !IsKind(err, KindInvalidSourceDirectory) {
		t.Fatalf("Expected KindInvalidSourceDirectory, got: %v", err)
	}
	if session.Snapshot().BatchID != second.BatchID {
		t.Error("Expected a failed scan to keep the previous batch")
	}
}

func TestSession_SelectionOutOfRange(t *testing.T) {
	session, source, _ := newTestSession(t)
	ctx := context.Background()
	if _, err := session.Scan(ctx, source); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := session.Process(ctx, Selected(0, 3)); err == nil {
		t.Error("Expected error for index 3, got nil")
	}
	for i, record := range session.Snapshot().Records {
		if record.Status != StatusResolved {
			t.Errorf("Expected record %d untouched, got %s", i, record.Status)
		}
	}
}

func newSamePhotoSession(t *testing.T) (*Session, string, string) {
	t.Helper()
	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "in")
	target := filepath.Join(tmpDir, "out")

	writePlainFile(t, filepath.Join(source, "a", "photo.jpg"), localDay(2024, 1, 1))
	writePlainFile(t, filepath.Join(source, "b", "photo.jpg"), localDay(2024, 1, 1))

	session := NewSessionWithFs(newDenyFs(), testOptions(source, target))
	if _, err := session.Scan(context.Background(), source); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return session, source, target
}

func TestSession_PreviewThenMoveReplansAgainstDisk(t *testing.T) {
	session, _, target := newSamePhotoSession(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(target, "2024-01-01", "photo.jpg"), []byte("already sorted"), localDay(2020, 1, 1))

	session.SetDryRun(true)
	preview, err := session.Process(ctx, All())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(preview.Planned) != 2 || filepath.Base(preview.Planned[1].Target) != "photo_1.jpg" {
		t.Fatalf("Expected preview to plan photo.jpg and photo_1.jpg, got %v", preview.Planned)
	}

	session.SetDryRun(false)
	report, err := session.Process(ctx, All())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if report.Moved != 2 || len(report.Failed) != 0 {
		t.Fatalf("Expected 2 moved and no failures, got moved=%d failed=%v", report.Moved, report.Failed)
	}

	dir := filepath.Join(target, "2024-01-01")
	records := session.Snapshot().Records
	if records[0].TargetPath() != filepath.Join(dir, "photo_1.jpg") || records[1].TargetPath() != filepath.Join(dir, "photo_2.jpg") {
		t.Errorf("Expected photo_1.jpg and photo_2.jpg, got %s and %s", records[0].TargetPath(), records[1].TargetPath())
	}
	assertExists(t, filepath.Join(dir, "photo_1.jpg"))
	assertExists(t, filepath.Join(dir, "photo_2.jpg"))
}

func TestSession_PreviewAfterPartialMoveAvoidsMovedTargets(t *testing.T) {
	session, source, target := newSamePhotoSession(t)
	ctx := context.Background()

	report, err := session.Process(ctx, Selected(1))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if report.Moved != 1 {
		t.Fatalf("Expected 1 moved, got %d (failed: %v)", report.Moved, report.Failed)
	}
	moved := filepath.Join(target, "2024-01-01", "photo.jpg")
	assertExists(t, moved)

	session.SetDryRun(true)
	preview, err := session.Process(ctx, All())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(preview.Planned) != 1 {
		t.Fatalf("Expected 1 planned move, got %v", preview.Planned)
	}
	plan := preview.Planned[0]
	if plan.Source != filepath.Join(source, "a", "photo.jpg") {
		t.Errorf("Expected a/photo.jpg to be planned, got %s", plan.Source)
	}
	if plan.Target == moved {
		t.Errorf("Expected preview to avoid %s, which is already taken", moved)
	}
	if filepath.Base(plan.Target) != "photo_1.jpg" {
		t.Errorf("Expected photo_1.jpg, got %s", plan.Target)
	}
}
