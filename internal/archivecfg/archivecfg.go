// Package archivecfg holds the small set of tunable defaults this tool
// uses when a caller does not override them explicitly. There is no config
// file (spec.md Non-goals exclude one); every value here is also reachable
// as a CLI flag default in cmd/json-archive.
package archivecfg

// DefaultSnapshotInterval is how many observations accumulate between
// automatic snapshot events when a caller does not pass -s.
const DefaultSnapshotInterval = 100

// DefaultExtension is appended to an input's name when create infers its
// output path (spec.md §4.8: "infers out_path from the first input as
// <input>.archive").
const DefaultExtension = ".archive"
