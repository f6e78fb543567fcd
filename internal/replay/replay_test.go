package replay

import (
	"testing"

	"github.com/PeoplesGrocers/json-archive/internal/event"
	"github.com/PeoplesGrocers/json-archive/internal/jsonvalue"
)

func mustUnmarshal(t *testing.T, s string) jsonvalue.Value {
	t.Helper()
	v, err := jsonvalue.Unmarshal([]byte(s))
	if err != nil {
		t.Fatalf("unmarshal %q: %v", s, err)
	}
	return v
}

func mustPtr(t *testing.T, s string) jsonvalue.Pointer {
	t.Helper()
	p, err := jsonvalue.ParsePointer(s)
	if err != nil {
		t.Fatalf("ParsePointer(%q): %v", s, err)
	}
	return p
}

func TestRunSimpleDelta(t *testing.T) {
	initial := mustUnmarshal(t, `{"x":1}`)
	events := []event.Event{
		event.Observe{ID: "obs-1", Timestamp: "2024-01-01T00:00:00Z", ChangeCount: 1},
		event.Change{Path: mustPtr(t, "/x"), NewValue: jsonvalue.NewNumber(2), ObsID: "obs-1"},
	}
	got, err := Run(initial, events)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := mustUnmarshal(t, `{"x":2}`)
	if !jsonvalue.Equal(got, want) {
		t.Fatalf("got %s want %s", got.DebugString(), want.DebugString())
	}
}

func TestRunAddThenRemove(t *testing.T) {
	initial := mustUnmarshal(t, `{"a":1}`)
	events := []event.Event{
		event.Observe{ID: "obs-1", ChangeCount: 1},
		event.Add{Path: mustPtr(t, "/b"), Value: jsonvalue.NewNumber(2), ObsID: "obs-1"},
		event.Observe{ID: "obs-2", ChangeCount: 1},
		event.Remove{Path: mustPtr(t, "/a"), ObsID: "obs-2"},
	}
	got, err := Run(initial, events)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := mustUnmarshal(t, `{"b":2}`)
	if !jsonvalue.Equal(got, want) {
		t.Fatalf("got %s want %s", got.DebugString(), want.DebugString())
	}
}

func TestRunMoveEvent(t *testing.T) {
	initial := mustUnmarshal(t, `{"xs":["A","B","C","D"]}`)
	events := []event.Event{
		event.Observe{ID: "obs-1", ChangeCount: 1},
		event.Move{Path: mustPtr(t, "/xs"), Moves: []event.MoveStep{{From: 3, To: 1}}, ObsID: "obs-1"},
	}
	got, err := Run(initial, events)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := mustUnmarshal(t, `{"xs":["A","D","B","C"]}`)
	if !jsonvalue.Equal(got, want) {
		t.Fatalf("got %s want %s", got.DebugString(), want.DebugString())
	}
}

func TestRunSnapshotReplacesState(t *testing.T) {
	initial := mustUnmarshal(t, `{"a":1}`)
	snapshotState := mustUnmarshal(t, `{"z":99}`)
	events := []event.Event{
		event.Observe{ID: "obs-1", ChangeCount: 1},
		event.Change{Path: mustPtr(t, "/a"), NewValue: jsonvalue.NewNumber(2), ObsID: "obs-1"},
		event.Snapshot{ID: "obs-2", Timestamp: "2024-01-01T00:00:00Z", State: snapshotState},
	}
	got, err := Run(initial, events)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !jsonvalue.Equal(got, snapshotState) {
		t.Fatalf("got %s want %s", got.DebugString(), snapshotState.DebugString())
	}
}

func TestRunWrongChangeCountRejected(t *testing.T) {
	initial := mustUnmarshal(t, `{"a":1}`)
	events := []event.Event{
		event.Observe{ID: "obs-1", ChangeCount: 2},
		event.Change{Path: mustPtr(t, "/a"), NewValue: jsonvalue.NewNumber(2), ObsID: "obs-1"},
		event.Observe{ID: "obs-2", ChangeCount: 1},
	}
	if _, err := Run(initial, events); err == nil {
		t.Fatalf("expected error for unsatisfied change_count")
	}
}

func TestRunMismatchedObsIDRejected(t *testing.T) {
	initial := mustUnmarshal(t, `{"a":1}`)
	events := []event.Event{
		event.Observe{ID: "obs-1", ChangeCount: 1},
		event.Change{Path: mustPtr(t, "/a"), NewValue: jsonvalue.NewNumber(2), ObsID: "obs-wrong"},
	}
	if _, err := Run(initial, events); err == nil {
		t.Fatalf("expected error for mismatched obs_id")
	}
}

// TestSnapshotEquivalence exercises testable property 4: replaying
// deltas-only from the nearest prior snapshot yields the same state as
// replaying from the header.
func TestSnapshotEquivalence(t *testing.T) {
	initial := mustUnmarshal(t, `{"a":1}`)
	fromHeader := []event.Event{
		event.Observe{ID: "obs-1", ChangeCount: 1},
		event.Change{Path: mustPtr(t, "/a"), NewValue: jsonvalue.NewNumber(2), ObsID: "obs-1"},
		event.Snapshot{ID: "obs-2", State: mustUnmarshal(t, `{"a":2}`)},
		event.Observe{ID: "obs-3", ChangeCount: 1},
		event.Change{Path: mustPtr(t, "/a"), NewValue: jsonvalue.NewNumber(3), ObsID: "obs-3"},
	}
	gotFromHeader, err := Run(initial, fromHeader)
	if err != nil {
		t.Fatalf("Run from header: %v", err)
	}

	fromSnapshot := []event.Event{
		event.Observe{ID: "obs-3", ChangeCount: 1},
		event.Change{Path: mustPtr(t, "/a"), NewValue: jsonvalue.NewNumber(3), ObsID: "obs-3"},
	}
	gotFromSnapshot, err := Run(mustUnmarshal(t, `{"a":2}`), fromSnapshot)
	if err != nil {
		t.Fatalf("Run from snapshot: %v", err)
	}

	if !jsonvalue.Equal(gotFromHeader, gotFromSnapshot) {
		t.Fatalf("snapshot replay diverged: header=%s snapshot=%s",
			gotFromHeader.DebugString(), gotFromSnapshot.DebugString())
	}
}
