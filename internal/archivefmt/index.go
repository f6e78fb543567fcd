package archivefmt

import (
	"time"

	"github.com/PeoplesGrocers/json-archive/archiveerr"
)

// SelectorKind discriminates the six ways spec.md §6 lets a caller name an
// observation.
type SelectorKind string

const (
	SelectByID    SelectorKind = "id"
	SelectByIndex SelectorKind = "index"
	SelectAsOf    SelectorKind = "as-of"
	SelectBefore  SelectorKind = "before"
	SelectAfter   SelectorKind = "after"
	SelectLatest  SelectorKind = "latest"
)

// Selector names one observation in an archive's timeline.
type Selector struct {
	Kind  SelectorKind
	ID    string
	Index int
	Time  string // raw timestamp text for as-of/before/after
}

// Resolve maps sel to a concrete observation index into sc.Observations.
// --as-of/--before/--after/--latest require a full scan of every
// observation's timestamp (spec.md §4.6); observations whose own timestamp
// fails to parse are skipped with no error (W012), since one bad record
// should not make every other selector query fail.
func Resolve(sc *Scanned, sel Selector) (int, error) {
	switch sel.Kind {
	case SelectByID:
		idx, ok := sc.IndexByID[sel.ID]
		if !ok {
			return 0, archiveerr.New(archiveerr.CodeObservationNotFound, "no observation with id %q", sel.ID)
		}
		return idx, nil
	case SelectByIndex:
		if sel.Index < 0 || sel.Index >= len(sc.Observations) {
			return 0, archiveerr.New(archiveerr.CodeIndexOutOfBounds, "index %d exceeds observation count %d", sel.Index, len(sc.Observations))
		}
		return sel.Index, nil
	case SelectLatest:
		return resolveExtreme(sc, nil)
	case SelectAsOf:
		target, err := ParseTimestamp(sel.Time)
		if err != nil {
			return 0, err
		}
		return resolveExtreme(sc, func(ts time.Time) bool { return !ts.After(target) })
	case SelectBefore:
		target, err := ParseTimestamp(sel.Time)
		if err != nil {
			return 0, err
		}
		return resolveExtreme(sc, func(ts time.Time) bool { return ts.Before(target) })
	case SelectAfter:
		target, err := ParseTimestamp(sel.Time)
		if err != nil {
			return 0, err
		}
		return resolveEarliest(sc, func(ts time.Time) bool { return ts.After(target) })
	default:
		return 0, archiveerr.New(archiveerr.CodeFatal, "unknown selector kind %q", sel.Kind)
	}
}

// timestampFor returns the parsed timestamp for observation k, or an error
// if it has none parsable. Index 0's timestamp is the header's Created
// field.
func timestampFor(sc *Scanned, k int) (time.Time, error) {
	if k == 0 {
		return ParseTimestamp(sc.Header.Created)
	}
	return ParseTimestamp(sc.Observations[k].Timestamp)
}

// resolveExtreme scans every observation accepted by keep (nil means
// "accept all"), returning the one with the latest timestamp. Ties are
// broken in favor of the later-in-file observation, per spec.md §4.6's
// --latest/--as-of tie-break rule.
func resolveExtreme(sc *Scanned, keep func(time.Time) bool) (int, error) {
	best := -1
	var bestTime time.Time
	for k := range sc.Observations {
		ts, err := timestampFor(sc, k)
		if err != nil {
			continue
		}
		if keep != nil && !keep(ts) {
			continue
		}
		if best == -1 || ts.After(bestTime) || ts.Equal(bestTime) {
			best = k
			bestTime = ts
		}
	}
	if best == -1 {
		return 0, archiveerr.New(archiveerr.CodeNoSelectorMatch, "no observation matches the requested selector")
	}
	return best, nil
}

// resolveEarliest scans every observation accepted by keep, returning the
// one with the earliest timestamp — used by --after, whose nearest match is
// the smallest qualifying timestamp rather than the largest.
func resolveEarliest(sc *Scanned, keep func(time.Time) bool) (int, error) {
	best := -1
	var bestTime time.Time
	for k := range sc.Observations {
		ts, err := timestampFor(sc, k)
		if err != nil {
			continue
		}
		if !keep(ts) {
			continue
		}
		if best == -1 || ts.Before(bestTime) {
			best = k
			bestTime = ts
		}
	}
	if best == -1 {
		return 0, archiveerr.New(archiveerr.CodeNoSelectorMatch, "no observation matches the requested selector")
	}
	return best, nil
}
