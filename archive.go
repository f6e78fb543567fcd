// Package archive implements the public operations of a JSON document
// archive: create, append, info, and state. It orchestrates
// internal/archivefmt, internal/diff, internal/event, and
// internal/jsonvalue behind the four entry points spec.md §4.8 names,
// enforcing the source-label and overwrite guards those operations require.
//
// Grounded on the teacher library's top-level New/Apply/Prepare functions
// (agentflare-ai-go-jsonpatch/patch.go) — a handful of orchestrating entry
// points over internal machinery is the shape a library root package takes
// throughout this corpus.
package archive

import (
	"os"
	"strings"
	"time"

	"github.com/PeoplesGrocers/json-archive/archiveerr"
	"github.com/PeoplesGrocers/json-archive/internal/archivecfg"
	"github.com/PeoplesGrocers/json-archive/internal/archivefmt"
	"github.com/PeoplesGrocers/json-archive/internal/codec"
	"github.com/PeoplesGrocers/json-archive/internal/event"
	"github.com/PeoplesGrocers/json-archive/internal/jsonvalue"
	"github.com/PeoplesGrocers/json-archive/internal/logx"
)

// CreateOptions configures Create.
type CreateOptions struct {
	OutPath          string // inferred from the first input when empty
	Force            bool   // overwrite an existing OutPath
	Source           string
	SnapshotInterval int // 0 means archivecfg.DefaultSnapshotInterval
}

// AppendOptions configures Append.
type AppendOptions struct {
	Source           string
	SnapshotInterval int
}

// InfoResult is what Info reports.
type InfoResult struct {
	Version      int
	Created      string
	Source       string
	Observations []ObservationRow
}

// ObservationRow is one line of Info's per-observation listing.
type ObservationRow struct {
	Index           int
	ID              string
	Timestamp       string
	ChangeCount     uint32
	IsSnapshot      bool
	DerivedJSONSize int
}

// Create writes a new archive whose header's initial state is the first
// input, then appends each remaining input as its own observation (spec.md
// §4.8: create is append's path repeated for inputs[1:]).
func Create(inputs []string, opts CreateOptions) (string, error) {
	if len(inputs) == 0 {
		return "", archiveerr.New(archiveerr.CodeFatal, "create requires at least one input file")
	}

	outPath := opts.OutPath
	if outPath == "" {
		outPath = inputs[0] + archivecfg.DefaultExtension
	}
	if !opts.Force {
		if _, err := os.Stat(outPath); err == nil {
			return "", archiveerr.New(archiveerr.CodeFatal, "archive %q already exists (use --force to overwrite)", outPath)
		}
	}

	initial, err := readDocument(inputs[0])
	if err != nil {
		return "", err
	}

	h := event.Header{
		Version: event.Version,
		Created: nowTimestamp(),
		Initial: initial,
		Source:  opts.Source,
	}

	// Writers always derive format from the output path's extension
	// (spec.md §4.2), so a ".gz"/".br"/".zlib" OutPath gets a genuinely
	// compressed header, not a plain one that later reads/appends would
	// fail to decompress.
	format, _ := codec.FormatFromExtension(outPath)

	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", archiveerr.Wrap(archiveerr.CodeFatal, err, "creating archive %q", outPath)
	}
	cw, err := codec.OpenWriter(f, format)
	if err != nil {
		f.Close()
		return "", archiveerr.Wrap(archiveerr.CodeFatal, err, "opening compressor for %q", outPath)
	}
	writeErr := archivefmt.WriteHeader(cw, h)
	if closeErr := cw.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		f.Close()
		return "", archiveerr.Wrap(archiveerr.CodeFatal, writeErr, "writing archive header")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", archiveerr.Wrap(archiveerr.CodeFatal, err, "syncing archive header")
	}
	if err := f.Close(); err != nil {
		return "", archiveerr.Wrap(archiveerr.CodeFatal, err, "closing archive")
	}

	for _, in := range inputs[1:] {
		if _, err := Append(outPath, []string{in}, AppendOptions{Source: opts.Source, SnapshotInterval: opts.SnapshotInterval}); err != nil {
			return "", err
		}
	}

	return outPath, nil
}

// Append adds one observation per input document to an existing archive.
func Append(archivePath string, inputs []string, opts AppendOptions) ([]archivefmt.AppendResult, error) {
	interval := opts.SnapshotInterval
	if interval == 0 {
		interval = archivecfg.DefaultSnapshotInterval
	}

	unlock, err := lockExclusive(archivePath)
	if err != nil {
		logx.Global().Warn("advisory lock not acquired, proceeding without it", logx.String("archive", archivePath), logx.Err(err))
	} else {
		defer unlock()
	}

	results := make([]archivefmt.AppendResult, 0, len(inputs))
	for _, in := range inputs {
		doc, err := readDocument(in)
		if err != nil {
			return results, err
		}
		res, err := archivefmt.Append(archivePath, doc, archivefmt.AppendOptions{
			Source:           opts.Source,
			SnapshotInterval: interval,
		})
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Info reports an archive's header metadata and a per-observation listing,
// including each observation's reconstructed JSON size (spec.md §4.6's
// first pass).
func Info(archivePath string) (InfoResult, error) {
	sc, err := scanPath(archivePath)
	if err != nil {
		return InfoResult{}, err
	}

	rows := make([]ObservationRow, 0, len(sc.Observations))
	for _, obs := range sc.Observations {
		state, err := sc.StateAt(obs.Index)
		if err != nil {
			return InfoResult{}, archiveerr.Wrap(archiveerr.CodeFatal, err, "reconstructing observation %d", obs.Index)
		}
		data, err := jsonvalue.Marshal(state)
		if err != nil {
			return InfoResult{}, archiveerr.Wrap(archiveerr.CodeFatal, err, "deriving size for observation %d", obs.Index)
		}
		rows = append(rows, ObservationRow{
			Index:           obs.Index,
			ID:              obs.ID,
			Timestamp:       obs.Timestamp,
			ChangeCount:     obs.ChangeCount,
			IsSnapshot:      obs.IsSnapshot,
			DerivedJSONSize: len(data),
		})
	}

	return InfoResult{
		Version:      sc.Header.Version,
		Created:      sc.Header.Created,
		Source:       sc.Header.Source,
		Observations: rows,
	}, nil
}

// State returns the reconstructed JSON value at the observation sel names.
func State(archivePath string, sel archivefmt.Selector) (jsonvalue.Value, error) {
	sc, err := scanPath(archivePath)
	if err != nil {
		return jsonvalue.Value{}, err
	}
	idx, err := archivefmt.Resolve(sc, sel)
	if err != nil {
		return jsonvalue.Value{}, err
	}
	return sc.StateAt(idx)
}

func scanPath(path string) (*archivefmt.Scanned, error) {
	sc, _, err := archivefmt.OpenScan(path)
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func readDocument(path string) (jsonvalue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jsonvalue.Value{}, archiveerr.Wrap(archiveerr.CodeInputNotFound, err, "reading input %q", path)
	}
	v, err := jsonvalue.Unmarshal(data)
	if err != nil {
		return jsonvalue.Value{}, archiveerr.Wrap(archiveerr.CodeFatal, err, "parsing input %q as JSON", path)
	}
	return v, nil
}

// LooksLikeArchivePath reports whether name appears to name an existing
// archive rather than a fresh input document, per the CLI's implicit
// create-vs-append dispatch rule (spec.md §6: "archive is identified by
// presence of .archive in the first argument").
func LooksLikeArchivePath(name string) bool {
	return strings.Contains(name, ".archive")
}

func nowTimestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
}
