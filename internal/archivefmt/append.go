package archivefmt

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/PeoplesGrocers/json-archive/archiveerr"
	"github.com/PeoplesGrocers/json-archive/internal/codec"
	"github.com/PeoplesGrocers/json-archive/internal/diff"
	"github.com/PeoplesGrocers/json-archive/internal/event"
	"github.com/PeoplesGrocers/json-archive/internal/jsonvalue"
)

// AppendOptions configures one append operation, implementing the seven
// numbered steps of spec.md §4.7.
type AppendOptions struct {
	// Source, if non-empty, must match the archive's header source label
	// when the header carries one (step 3's cross-stream guard).
	Source string
	// SnapshotInterval triggers an extra snapshot event every time this many
	// observations have accumulated. Zero disables snapshotting.
	SnapshotInterval int
	// NewObservationID and Now let tests pin the id/timestamp; both default
	// to a real uuid and the wall clock when nil.
	NewObservationID func() string
	Now              func() string
}

// AppendResult reports what Append wrote.
type AppendResult struct {
	ObservationID string
	Index         int
	ChangeCount   int
	SnapshotTaken bool
}

// Append reconstructs an archive's current state, diffs it against doc, and
// appends the resulting observation (and, on the configured interval, a
// trailing snapshot). Plain archives are extended in place by seeking to
// EOF; every compressed format is rewritten in full to a temp file and
// atomically renamed over the original, since none of them support
// in-place append (codec.AppendCapable).
func Append(path string, doc jsonvalue.Value, opts AppendOptions) (AppendResult, error) {
	sc, format, err := OpenScan(path)
	if err != nil {
		return AppendResult{}, err
	}

	if opts.Source != "" && sc.Header.Source != "" && sc.Header.Source != opts.Source {
		return AppendResult{}, archiveerr.New(archiveerr.CodeFatal,
			"source mismatch: archive is labeled %q, append requested %q", sc.Header.Source, opts.Source)
	}

	currentIdx := len(sc.Observations) - 1
	current, err := sc.StateAt(currentIdx)
	if err != nil {
		return AppendResult{}, archiveerr.Wrap(archiveerr.CodeFatal, err, "reconstructing current state")
	}

	mutations := diff.Diff(current, doc)

	newID := "obs-" + newUUID(opts.NewObservationID)
	ts := nowTimestamp(opts.Now)

	newEvents := make([]event.Event, 0, len(mutations)+2)
	newEvents = append(newEvents, event.Observe{ID: newID, Timestamp: ts, ChangeCount: uint32(len(mutations))})
	for _, m := range mutations {
		newEvents = append(newEvents, stampMutation(m, newID))
	}

	newObsNumber := currentIdx + 1 // this append's 1-based observation count, excluding the synthetic initial
	snapshotTaken := opts.SnapshotInterval > 0 && newObsNumber%opts.SnapshotInterval == 0
	if snapshotTaken {
		newEvents = append(newEvents, event.Snapshot{ID: "obs-" + newUUID(opts.NewObservationID), Timestamp: nowTimestamp(opts.Now), State: doc})
	}

	if codec.AppendCapable(format) {
		if err := appendPlain(path, newEvents); err != nil {
			return AppendResult{}, err
		}
	} else {
		if err := rewriteCompressed(path, format, sc.Header, sc.Events, newEvents); err != nil {
			return AppendResult{}, err
		}
	}

	return AppendResult{
		ObservationID: newID,
		Index:         newObsNumber,
		ChangeCount:   len(mutations),
		SnapshotTaken: snapshotTaken,
	}, nil
}

// stampMutation converts a diff.Mutation (which carries no obs_id, per
// internal/diff's separation of concerns) into the wire event that
// references obsID.
func stampMutation(m diff.Mutation, obsID string) event.Event {
	switch m.Kind {
	case diff.KindAdd:
		return event.Add{Path: m.Path, Value: m.Value, ObsID: obsID}
	case diff.KindChange:
		return event.Change{Path: m.Path, NewValue: m.Value, ObsID: obsID}
	case diff.KindRemove:
		return event.Remove{Path: m.Path, ObsID: obsID}
	case diff.KindMove:
		steps := make([]event.MoveStep, len(m.Moves))
		for i, s := range m.Moves {
			steps[i] = event.MoveStep{From: s.From, To: s.To}
		}
		return event.Move{Path: m.Path, Moves: steps, ObsID: obsID}
	default:
		panic(fmt.Sprintf("archivefmt: unknown mutation kind %v", m.Kind))
	}
}

// OpenScan opens path, detects its compression format (extension first, then
// magic bytes), and scans the decoded event stream. The file is fully read
// and closed before returning. Both the append path and the root archive
// package's info/state queries share this so compressed archives are never
// handed to the line scanner as raw bytes.
func OpenScan(path string) (*Scanned, codec.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, archiveerr.Wrap(archiveerr.CodeInputNotFound, err, "opening archive %q", path)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	format, err := codec.DetectFormat(path, br)
	if err != nil {
		return nil, 0, archiveerr.Wrap(archiveerr.CodeFatal, err, "detecting archive compression")
	}
	dr, err := codec.OpenReader(br, format)
	if err != nil {
		return nil, 0, archiveerr.Wrap(archiveerr.CodeFatal, err, "opening archive reader")
	}
	defer dr.Close()

	sc, err := ScanReader(dr)
	if err != nil {
		return nil, 0, err
	}
	return sc, format, nil
}

// appendPlain extends a plain-format archive in place: open for append,
// write the new lines, flush to disk. This is the only format for which
// codec.AppendCapable is true.
func appendPlain(path string, events []event.Event) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return archiveerr.Wrap(archiveerr.CodeFatal, err, "opening archive %q for append", path)
	}
	defer f.Close()

	for _, e := range events {
		if err := WriteEvent(f, e); err != nil {
			return archiveerr.Wrap(archiveerr.CodeFatal, err, "writing event")
		}
	}
	return f.Sync()
}

// rewriteCompressed re-emits the full archive (header, every prior event,
// and the new events) through a fresh compressor into a temp file in the
// same directory, then atomically renames it over path. Compressed formats
// have no append-in-place primitive, so every append to one is a full
// rewrite (spec.md §4.2).
func rewriteCompressed(path string, format codec.Format, h event.Header, prior []event.Event, fresh []event.Event) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".json-archive-*.tmp")
	if err != nil {
		return archiveerr.Wrap(archiveerr.CodeFatal, err, "creating temp file for compressed rewrite")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	cw, err := codec.OpenWriter(tmp, format)
	if err != nil {
		tmp.Close()
		return archiveerr.Wrap(archiveerr.CodeFatal, err, "opening compressor")
	}

	writeErr := func() error {
		if err := WriteHeader(cw, h); err != nil {
			return err
		}
		for _, e := range prior {
			if err := WriteEvent(cw, e); err != nil {
				return err
			}
		}
		for _, e := range fresh {
			if err := WriteEvent(cw, e); err != nil {
				return err
			}
		}
		return nil
	}()
	if closeErr := cw.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		tmp.Close()
		return archiveerr.Wrap(archiveerr.CodeFatal, writeErr, "writing compressed rewrite")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return archiveerr.Wrap(archiveerr.CodeFatal, err, "syncing compressed rewrite")
	}
	if err := tmp.Close(); err != nil {
		return archiveerr.Wrap(archiveerr.CodeFatal, err, "closing compressed rewrite")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return archiveerr.Wrap(archiveerr.CodeFatal, err, "renaming compressed rewrite into place")
	}
	return nil
}
