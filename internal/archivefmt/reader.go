// Package archivefmt implements the on-disk archive container: the header
// plus one-JSON-value-per-line event stream described in spec.md §3/§4.6,
// and the append protocol in spec.md §4.7. Scanning is grounded on the
// teacher pack's directory/header scan in
// abrahamVado-DriftPursuit/go-broker/tools/replay_catalog/catalog.go, which
// produces a sorted, typed listing from raw files; this package generalizes
// that single-pass-scan shape to a line-oriented event log with an
// observation index.
package archivefmt

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PeoplesGrocers/json-archive/archiveerr"
	"github.com/PeoplesGrocers/json-archive/internal/event"
	"github.com/PeoplesGrocers/json-archive/internal/jsonvalue"
	"github.com/PeoplesGrocers/json-archive/internal/replay"
)

// Observation describes one entry in an archive's observation timeline.
// Index 0 is the synthetic "initial" state carried by the header; it has no
// backing event and the ID "initial".
type Observation struct {
	Index       int
	ID          string
	Timestamp   string
	ChangeCount uint32
	IsSnapshot  bool

	// EventStart/EventEnd bound the half-open range of this observation's
	// own events within Scanned.Events: [EventStart, EventEnd). For index 0
	// both are 0. For a delta observation EventStart is its Observe event's
	// position and EventEnd is EventStart+1+ChangeCount. For a snapshot
	// observation the range is exactly the one Snapshot event.
	EventStart int
	EventEnd   int
}

// Scanned is the result of a full forward pass over an archive's decoded
// event stream.
type Scanned struct {
	Header       event.Header
	Events       []event.Event
	EventLines   []int // 1-based source line number per entry in Events
	Observations []Observation
	IndexByID    map[string]int
}

// Scan performs a single forward pass over lines, which must hold the
// header object followed by zero or more event-line arrays. Blank and
// comment ('#'-prefixed) lines are the caller's concern before reaching
// here (see SplitLines); Scan operates on already-split, non-blank,
// non-comment lines paired with their source line numbers.
//
// A final line that fails to parse is treated as a truncated tail (spec.md
// crash-safety note) and silently dropped rather than surfaced as an error,
// but only when its Line.TruncatedTail is set, i.e. the underlying file had
// no trailing newline — a well-formed last line lacking a trailing newline
// still parses normally and is kept. If the dropped line belonged to a
// delta group that is left incomplete, that whole observation is dropped
// with it.
func Scan(lines []Line) (*Scanned, error) {
	sc := &Scanned{IndexByID: map[string]int{}}

	var haveHeader bool
	var openGroup int = -1 // index into sc.Observations of a still-open delta group
	var openRemain uint32
	var truncated bool

	for i, ln := range lines {
		val, perr := jsonvalue.Unmarshal([]byte(ln.Text))
		if perr != nil {
			if ln.TruncatedTail {
				truncated = true
				break
			}
			if !haveHeader {
				return nil, archiveerr.Wrap(archiveerr.CodeHeaderMalformed, perr, "parsing header").WithLine(ln.Number)
			}
			return nil, archiveerr.Wrap(archiveerr.CodeBadEvent, perr, "parsing event line").WithLine(ln.Number)
		}

		if !haveHeader {
			h, err := event.HeaderFromValue(val)
			if err != nil {
				return nil, archiveerr.Wrap(archiveerr.CodeHeaderMalformed, err, "parsing header").WithLine(ln.Number)
			}
			sc.Header = h
			haveHeader = true
			sc.Observations = append(sc.Observations, Observation{Index: 0, ID: "initial", Timestamp: h.Created})
			sc.IndexByID["initial"] = 0
			continue
		}

		e, err := event.FromValue(val)
		if err != nil {
			if ln.TruncatedTail && i == len(lines)-1 {
				truncated = true
				break
			}
			return nil, archiveerr.Wrap(archiveerr.CodeBadEvent, err, "parsing event line").WithLine(ln.Number)
		}

		pos := len(sc.Events)
		sc.Events = append(sc.Events, e)
		sc.EventLines = append(sc.EventLines, ln.Number)

		switch t := e.(type) {
		case event.Observe:
			if openGroup != -1 {
				return nil, archiveerr.New(archiveerr.CodeBadEvent,
					"observe %q opened while observation %q still expects %d more deltas",
					t.ID, sc.Observations[openGroup].ID, openRemain).WithLine(ln.Number)
			}
			if _, dup := sc.IndexByID[t.ID]; dup {
				return nil, archiveerr.New(archiveerr.CodeBadEvent, "duplicate observation id %q", t.ID).WithLine(ln.Number)
			}
			obsIdx := len(sc.Observations)
			sc.Observations = append(sc.Observations, Observation{
				Index: obsIdx, ID: t.ID, Timestamp: t.Timestamp, ChangeCount: t.ChangeCount,
				EventStart: pos, EventEnd: pos + 1 + int(t.ChangeCount),
			})
			sc.IndexByID[t.ID] = obsIdx
			if t.ChangeCount == 0 {
				openGroup = -1
			} else {
				openGroup = obsIdx
				openRemain = t.ChangeCount
			}
		case event.Snapshot:
			if openGroup != -1 {
				return nil, archiveerr.New(archiveerr.CodeBadEvent,
					"snapshot %q appeared while observation %q still expects %d more deltas",
					t.ID, sc.Observations[openGroup].ID, openRemain).WithLine(ln.Number)
			}
			if _, dup := sc.IndexByID[t.ID]; dup {
				return nil, archiveerr.New(archiveerr.CodeBadEvent, "duplicate observation id %q", t.ID).WithLine(ln.Number)
			}
			obsIdx := len(sc.Observations)
			sc.Observations = append(sc.Observations, Observation{
				Index: obsIdx, ID: t.ID, Timestamp: t.Timestamp, IsSnapshot: true,
				EventStart: pos, EventEnd: pos + 1,
			})
			sc.IndexByID[t.ID] = obsIdx
		default:
			if openGroup == -1 {
				return nil, archiveerr.New(archiveerr.CodeBadEvent, "delta event with no open observation").WithLine(ln.Number)
			}
			obsID := event.ObsID(e)
			if obsID != sc.Observations[openGroup].ID {
				return nil, archiveerr.New(archiveerr.CodeBadEvent,
					"delta event carries obs_id %q, expected %q", obsID, sc.Observations[openGroup].ID).WithLine(ln.Number)
			}
			openRemain--
			if openRemain == 0 {
				openGroup = -1
			}
		}
	}

	if !haveHeader {
		return nil, archiveerr.New(archiveerr.CodeHeaderMalformed, "archive has no header line")
	}
	if truncated && openGroup != -1 {
		// The truncated tail was part of the last delta group; drop that
		// incomplete observation together with its events.
		start := sc.Observations[openGroup].EventStart
		delete(sc.IndexByID, sc.Observations[openGroup].ID)
		sc.Observations = sc.Observations[:openGroup]
		sc.Events = sc.Events[:start]
		sc.EventLines = sc.EventLines[:start]
		openGroup = -1
	}
	if openGroup != -1 {
		return nil, archiveerr.New(archiveerr.CodeBadEvent,
			"observation %q ends the file still expecting %d more deltas",
			sc.Observations[openGroup].ID, openRemain)
	}
	return sc, nil
}

// Line is one non-blank, non-comment source line paired with its 1-based
// line number. TruncatedTail marks the final line of a file with no
// trailing newline, licensing Scan to drop it silently on parse failure
// instead of erroring (spec.md crash-safety: a partially-written final line
// is a truncated tail, not corruption).
type Line struct {
	Text          string
	Number        int
	TruncatedTail bool
}

// SplitLines tokenizes raw archive bytes into Lines, skipping blank and
// '#'-prefixed comment lines (spec.md §3: "blank lines and lines whose
// first non-whitespace character is '#' are ignored"). CRLF line endings
// are tolerated on read; '\r' is stripped from each line's end.
func SplitLines(data []byte) []Line {
	finalHasNewline := len(data) > 0 && data[len(data)-1] == '\n'
	raw := bytes.Split(data, []byte("\n"))
	if finalHasNewline {
		raw = raw[:len(raw)-1]
	}
	lines := make([]Line, 0, len(raw))
	for i, b := range raw {
		text := strings.TrimSuffix(string(b), "\r")
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		isLast := i == len(raw)-1
		lines = append(lines, Line{
			Text:          trimmed,
			Number:        i + 1,
			TruncatedTail: isLast && !finalHasNewline,
		})
	}
	return lines
}

// ScanReader reads all of r and scans it in one pass. Callers holding an
// os.File should pass it through a decompressing codec.OpenReader first;
// Scan itself has no notion of compression.
func ScanReader(r io.Reader) (*Scanned, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Scan(SplitLines(data))
}

// StateAt reconstructs the document state as of observation idx: the
// nearest prior snapshot (or the header's initial state if none exists),
// replayed forward through the intervening delta events. This is the
// engine behind both --index/--id/--as-of state queries and info's
// per-observation derived_json_size column.
func (sc *Scanned) StateAt(idx int) (jsonvalue.Value, error) {
	if idx < 0 || idx >= len(sc.Observations) {
		return jsonvalue.Value{}, fmt.Errorf("archivefmt: observation index %d out of bounds (have %d)", idx, len(sc.Observations))
	}
	if idx == 0 {
		return sc.Header.Initial.Clone(), nil
	}
	if sc.Observations[idx].IsSnapshot {
		snap := sc.Events[sc.Observations[idx].EventStart].(event.Snapshot)
		return snap.State.Clone(), nil
	}

	base := sc.Header.Initial
	replayFrom := 1
	for k := idx - 1; k >= 1; k-- {
		if sc.Observations[k].IsSnapshot {
			snap := sc.Events[sc.Observations[k].EventStart].(event.Snapshot)
			base = snap.State
			replayFrom = k + 1
			break
		}
	}

	evStart := sc.Observations[replayFrom].EventStart
	evEnd := sc.Observations[idx].EventEnd
	state, err := replay.Run(base, sc.Events[evStart:evEnd])
	if err != nil {
		return jsonvalue.Value{}, archiveerr.Wrap(archiveerr.CodeFatal, err,
			"replaying observation %d", idx).WithLine(sc.EventLines[evStart])
	}
	return state, nil
}

// ParseTimestamp parses an ISO-8601 timestamp in either RFC3339 or
// RFC3339Nano form, accepting both a 'Z' suffix and a numeric UTC offset.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, archiveerr.Wrap(archiveerr.CodeInvalidTimestamp, err, "parsing timestamp %q", s)
	}
	return t, nil
}
