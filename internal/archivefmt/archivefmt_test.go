package archivefmt

import (
	"os"
	"path/filepath"
	"strings"
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

func writeFixture(t *testing.T, dir string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, "fixture.json.archive")
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestScanIgnoresBlankAndCommentLines(t *testing.T) {
	lines := SplitLines([]byte(`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"a":1}}

# a comment line
["observe","obs-1","2024-01-01T00:00:01Z",1]
["change","/a",2,"obs-1"]
`))
	sc, err := Scan(lines)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sc.Observations) != 2 {
		t.Fatalf("expected 2 observations (initial + obs-1), got %d", len(sc.Observations))
	}
	got, err := sc.StateAt(1)
	if err != nil {
		t.Fatalf("StateAt: %v", err)
	}
	want := mustUnmarshal(t, `{"a":2}`)
	if !jsonvalue.Equal(got, want) {
		t.Fatalf("got %s want %s", got.DebugString(), want.DebugString())
	}
}

func TestScanTruncatedTailIsIgnored(t *testing.T) {
	data := []byte(`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"a":1}}
["observe","obs-1","2024-01-01T00:00:01Z",1]
["change","/a",2,"obs-1"]
["observe","obs-2","2024-01-01T00:00:02Z",1]
["change","/a",3,"obs-2"`) // deliberately truncated, no closing bracket, no trailing newline
	lines := SplitLines(data)
	sc, err := Scan(lines)
	if err != nil {
		t.Fatalf("scan should tolerate a truncated tail, got error: %v", err)
	}
	if len(sc.Observations) != 2 {
		t.Fatalf("expected truncated obs-2 to be dropped, got %d observations", len(sc.Observations))
	}
	got, err := sc.StateAt(len(sc.Observations) - 1)
	if err != nil {
		t.Fatalf("StateAt: %v", err)
	}
	want := mustUnmarshal(t, `{"a":2}`)
	if !jsonvalue.Equal(got, want) {
		t.Fatalf("got %s want %s", got.DebugString(), want.DebugString())
	}
}

func TestScanRejectsMismatchedChangeCount(t *testing.T) {
	lines := SplitLines([]byte(`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"a":1}}
["observe","obs-1","2024-01-01T00:00:01Z",2]
["change","/a",2,"obs-1"]
`))
	if _, err := Scan(lines); err == nil {
		t.Fatalf("expected error: file ends mid-observation")
	}
}

func TestStateAtUsesNearestPriorSnapshot(t *testing.T) {
	lines := SplitLines([]byte(`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"a":1}}
["observe","obs-1","2024-01-01T00:00:01Z",1]
["change","/a",2,"obs-1"]
["snapshot","obs-2","2024-01-01T00:00:02Z",{"a":2,"extra":true}]
["observe","obs-3","2024-01-01T00:00:03Z",1]
["change","/a",3,"obs-3"]
`))
	sc, err := Scan(lines)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	idx, ok := sc.IndexByID["obs-3"]
	if !ok {
		t.Fatalf("obs-3 not indexed")
	}
	got, err := sc.StateAt(idx)
	if err != nil {
		t.Fatalf("StateAt: %v", err)
	}
	want := mustUnmarshal(t, `{"a":3,"extra":true}`)
	if !jsonvalue.Equal(got, want) {
		t.Fatalf("got %s want %s", got.DebugString(), want.DebugString())
	}
}

func TestResolveSelectors(t *testing.T) {
	lines := SplitLines([]byte(`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"a":1}}
["observe","obs-1","2024-01-01T00:00:01Z",1]
["change","/a",2,"obs-1"]
["observe","obs-2","2024-01-01T00:00:02Z",1]
["change","/a",3,"obs-2"]
["observe","obs-3","2024-01-01T00:00:03Z",1]
["change","/a",4,"obs-3"]
`))
	sc, err := Scan(lines)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if idx, err := Resolve(sc, Selector{Kind: SelectByID, ID: "obs-2"}); err != nil || idx != 2 {
		t.Fatalf("by id: idx=%d err=%v", idx, err)
	}
	if idx, err := Resolve(sc, Selector{Kind: SelectByIndex, Index: 3}); err != nil || idx != 3 {
		t.Fatalf("by index: idx=%d err=%v", idx, err)
	}
	if idx, err := Resolve(sc, Selector{Kind: SelectLatest}); err != nil || idx != 3 {
		t.Fatalf("latest: idx=%d err=%v", idx, err)
	}
	if idx, err := Resolve(sc, Selector{Kind: SelectAsOf, Time: "2024-01-01T00:00:02Z"}); err != nil || idx != 2 {
		t.Fatalf("as-of: idx=%d err=%v", idx, err)
	}
	if idx, err := Resolve(sc, Selector{Kind: SelectBefore, Time: "2024-01-01T00:00:02Z"}); err != nil || idx != 1 {
		t.Fatalf("before: idx=%d err=%v", idx, err)
	}
	if idx, err := Resolve(sc, Selector{Kind: SelectAfter, Time: "2024-01-01T00:00:01Z"}); err != nil || idx != 2 {
		t.Fatalf("after: idx=%d err=%v", idx, err)
	}
	if _, err := Resolve(sc, Selector{Kind: SelectByID, ID: "obs-missing"}); err == nil {
		t.Fatalf("expected error for unknown id")
	}
}

func TestAppendPlainArchive(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, []string{
		`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"a":1}}`,
	})

	callCount := 0
	opts := AppendOptions{
		NewObservationID: func() string { callCount++; return "fixed-id" },
		Now:              func() string { return "2024-01-02T00:00:00.000000Z" },
	}
	res, err := Append(path, mustUnmarshal(t, `{"a":2}`), opts)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.ChangeCount != 1 || res.Index != 1 {
		t.Fatalf("unexpected append result: %+v", res)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	sc, err := Scan(SplitLines(data))
	if err != nil {
		t.Fatalf("scan appended archive: %v", err)
	}
	got, err := sc.StateAt(len(sc.Observations) - 1)
	if err != nil {
		t.Fatalf("StateAt: %v", err)
	}
	want := mustUnmarshal(t, `{"a":2}`)
	if !jsonvalue.Equal(got, want) {
		t.Fatalf("got %s want %s", got.DebugString(), want.DebugString())
	}
}

func TestAppendSourceMismatchRefusesWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, []string{
		`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"a":1},"source":"S1"}`,
	})
	before, _ := os.ReadFile(path)

	_, err := Append(path, mustUnmarshal(t, `{"a":2}`), AppendOptions{Source: "S2"})
	if err == nil {
		t.Fatalf("expected source mismatch error")
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Fatalf("archive was modified despite refused append")
	}
}

func TestAppendZeroChangeStillEmitsObserve(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, []string{
		`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"a":1}}`,
	})
	res, err := Append(path, mustUnmarshal(t, `{"a":1}`), AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.ChangeCount != 0 {
		t.Fatalf("expected zero-change append, got %d", res.ChangeCount)
	}

	data, _ := os.ReadFile(path)
	sc, err := Scan(SplitLines(data))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(sc.Observations) != 2 {
		t.Fatalf("expected an observe to be recorded even with no deltas, got %d observations", len(sc.Observations))
	}
	if sc.Observations[1].ChangeCount != 0 {
		t.Fatalf("expected change_count 0, got %d", sc.Observations[1].ChangeCount)
	}
}

func TestAppendSnapshotInterval(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, []string{
		`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"n":0}}`,
	})
	opts := AppendOptions{SnapshotInterval: 3}
	for i := 1; i <= 3; i++ {
		doc := mustUnmarshal(t, `{"n":`+itoa(i)+`}`)
		res, err := Append(path, doc, opts)
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if i < 3 && res.SnapshotTaken {
			t.Fatalf("append %d: unexpected snapshot", i)
		}
		if i == 3 && !res.SnapshotTaken {
			t.Fatalf("append 3: expected snapshot at the configured interval")
		}
	}

	data, _ := os.ReadFile(path)
	sc, err := Scan(SplitLines(data))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	foundSnapshot := false
	for _, o := range sc.Observations {
		if o.IsSnapshot {
			foundSnapshot = true
		}
	}
	if !foundSnapshot {
		t.Fatalf("expected a snapshot event to have been written")
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestAppendArrayMoveScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, []string{
		`{"version":1,"created":"2024-01-01T00:00:00Z","initial":{"xs":["A","B","C","D"]}}`,
	})
	res, err := Append(path, mustUnmarshal(t, `{"xs":["A","D","B","C"]}`), AppendOptions{})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if res.ChangeCount != 1 {
		t.Fatalf("expected a single move mutation, got change_count=%d", res.ChangeCount)
	}

	data, _ := os.ReadFile(path)
	sc, err := Scan(SplitLines(data))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	obs := sc.Observations[1]
	evs := sc.Events[obs.EventStart+1 : obs.EventEnd]
	if len(evs) != 1 {
		t.Fatalf("expected exactly one delta event, got %d", len(evs))
	}
	mv, ok := evs[0].(event.Move)
	if !ok {
		t.Fatalf("expected a move event, got %T", evs[0])
	}
	if len(mv.Moves) != 1 || mv.Moves[0] != (event.MoveStep{From: 3, To: 1}) {
		t.Fatalf("unexpected move steps: %v", mv.Moves)
	}
}
