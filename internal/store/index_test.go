package store

import (
	"errors"
	"testing"
	"time"

	"github.com/blackwell-systems/datapkg/internal/apperr"
	"github.com/blackwell-systems/datapkg/internal/pkgid"
)

var (
	widget = pkgid.ID{Owner: "acme", Name: "widget"}
	gadget = pkgid.ID{Owner: "acme", Name: "gadget"}
)

// newTestIndex creates an in-memory index with its schema.
func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenIndex(":memory:")
	if err != nil {
		t.Fatalf("failed to open test index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	if err := idx.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return idx
}

func TestIndex_NoSchema_ReturnsErrNotInitialized(t *testing.T) {
	idx, err := OpenIndex(":memory:")
	if err != nil {
		t.Fatalf("OpenIndex() failed: %v", err)
	}
	defer idx.Close()

	// No CreateSchema: every query should report an uninitialized index.
	if _, err := idx.ListPackageRecords(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListPackageRecords() error = %v; want ErrNotInitialized", err)
	}
	if _, err := idx.GetPackage(widget); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("GetPackage() error = %v; want ErrNotInitialized", err)
	}
	if _, err := idx.ListEvents(nil, 0); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("ListEvents() error = %v; want ErrNotInitialized", err)
	}
}

func TestCreateSchema(t *testing.T) {
	idx := newTestIndex(t)

	for _, table := range []string{"packages", "events"} {
		var name string
		err := idx.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	// Idempotent
	if err := idx.CreateSchema(); err != nil {
		t.Errorf("second CreateSchema() failed: %v", err)
	}
}

func TestUpsertAndGetPackage(t *testing.T) {
	idx := newTestIndex(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := &PackageRecord{ID: widget, Hash: "aaa", SizeBytes: 10, Root: "/data/packages", UpdatedAt: now}
	if err := upsertPackage(idx.db, rec); err != nil {
		t.Fatalf("upsertPackage() failed: %v", err)
	}

	got, err := idx.GetPackage(widget)
	if err != nil {
		t.Fatalf("GetPackage() failed: %v", err)
	}
	if got.ID != widget || got.Hash != "aaa" || got.SizeBytes != 10 || got.Root != "/data/packages" {
		t.Errorf("GetPackage() = %+v", got)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, now)
	}

	rec.Hash = "bbb"
	rec.SizeBytes = 20
	if err := upsertPackage(idx.db, rec); err != nil {
		t.Fatalf("second upsertPackage() failed: %v", err)
	}
	got, err = idx.GetPackage(widget)
	if err != nil {
		t.Fatalf("GetPackage() failed: %v", err)
	}
	if got.Hash != "bbb" || got.SizeBytes != 20 {
		t.Errorf("upsert did not replace row: %+v", got)
	}
}

func TestGetPackageNotFound(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.GetPackage(widget)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetPackage() error = %v; want ErrNotFound", err)
	}
}

func TestListPackageRecords_Ordered(t *testing.T) {
	idx := newTestIndex(t)
	now := time.Now()

	for _, id := range []pkgid.ID{{Owner: "zeta", Name: "a"}, widget, gadget} {
		if err := upsertPackage(idx.db, &PackageRecord{ID: id, Hash: "h", Root: "/r", UpdatedAt: now}); err != nil {
			t.Fatalf("upsertPackage(%s) failed: %v", id, err)
		}
	}

	records, err := idx.ListPackageRecords()
	if err != nil {
		t.Fatalf("ListPackageRecords() failed: %v", err)
	}

	want := []string{"acme/gadget", "acme/widget", "zeta/a"}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i, rec := range records {
		if rec.ID.String() != want[i] {
			t.Errorf("records[%d] = %s, want %s", i, rec.ID, want[i])
		}
	}
}

func TestDeletePackage(t *testing.T) {
	idx := newTestIndex(t)
	if err := upsertPackage(idx.db, &PackageRecord{ID: widget, Hash: "h", Root: "/r", UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("upsertPackage() failed: %v", err)
	}

	if err := deletePackage(idx.db, widget); err != nil {
		t.Fatalf("deletePackage() failed: %v", err)
	}
	if err := deletePackage(idx.db, widget); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second deletePackage() error = %v; want ErrNotFound", err)
	}
}

func TestRecord_UpdatesPackageRow(t *testing.T) {
	idx := newTestIndex(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	steps := []struct {
		action  Action
		hash    string
		wantRow bool
	}{
		{ActionBuild, "h1", true},
		{ActionPush, "h1", true},
		{ActionInstall, "h2", true},
		{ActionRemove, "h2", false},
	}

	for i, step := range steps {
		at := base.Add(time.Duration(i) * time.Minute)
		ev := &Event{Package: widget, Action: step.action, Hash: step.hash, SizeBytes: 5, Timestamp: at}
		rec := &PackageRecord{ID: widget, Hash: step.hash, SizeBytes: 5, Root: "/r", UpdatedAt: at}
		if err := idx.Record(ev, rec); err != nil {
			t.Fatalf("Record(%s) failed: %v", step.action, err)
		}
		if ev.ID == "" {
			t.Errorf("Record(%s) did not assign an event ID", step.action)
		}

		row, err := idx.GetPackage(widget)
		if step.wantRow {
			if err != nil {
				t.Fatalf("after %s: GetPackage() failed: %v", step.action, err)
			}
			if row.Hash != step.hash {
				t.Errorf("after %s: hash = %s, want %s", step.action, row.Hash, step.hash)
			}
		} else if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("after %s: GetPackage() error = %v; want ErrNotFound", step.action, err)
		}
	}

	count, err := idx.EventCount()
	if err != nil {
		t.Fatalf("EventCount() failed: %v", err)
	}
	if count != len(steps) {
		t.Errorf("EventCount() = %d, want %d", count, len(steps))
	}
}

func TestRecord_RemoveOfUnindexedPackage(t *testing.T) {
	idx := newTestIndex(t)

	if err := idx.Record(&Event{Package: widget, Action: ActionRemove}, nil); err != nil {
		t.Errorf("Record(remove) of unindexed package failed: %v", err)
	}
}

func TestListEvents_NewestFirstAndFiltered(t *testing.T) {
	idx := newTestIndex(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	events := []*Event{
		{Package: widget, Action: ActionBuild, Timestamp: base},
		{Package: gadget, Action: ActionInstall, Timestamp: base.Add(time.Second)},
		{Package: widget, Action: ActionPush, Timestamp: base.Add(1500 * time.Millisecond)},
	}
	for _, ev := range events {
		if err := idx.InsertEvent(ev); err != nil {
			t.Fatalf("InsertEvent() failed: %v", err)
		}
	}

	all, err := idx.ListEvents(nil, 0)
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	if all[0].Action != ActionPush || all[2].Action != ActionBuild {
		t.Errorf("events not newest first: %s, %s, %s", all[0].Action, all[1].Action, all[2].Action)
	}
	if !all[0].Timestamp.Equal(base.Add(1500 * time.Millisecond)) {
		t.Errorf("timestamp round trip = %v", all[0].Timestamp)
	}

	id := widget
	filtered, err := idx.ListEvents(&id, 1)
	if err != nil {
		t.Fatalf("ListEvents(widget) failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Action != ActionPush {
		t.Errorf("ListEvents(widget, 1) = %+v", filtered)
	}
}
