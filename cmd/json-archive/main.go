// Command json-archive is the CLI front end over the archive package's
// four public operations. Subcommand dispatch and per-subcommand flag
// parsing follow the teacher pack's CLI tools
// (abrahamVado-DriftPursuit/go-broker/tools/replay_catalog/cmd/replay_catalog,
// tools/replay_player/cmd/replay_player): stdlib flag.FlagSet, errors
// printed to stderr, os.Exit(1) on failure — not a third-party CLI
// framework.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	archive "github.com/PeoplesGrocers/json-archive"
	"github.com/PeoplesGrocers/json-archive/internal/archivecfg"
	"github.com/PeoplesGrocers/json-archive/internal/archivefmt"
	"github.com/PeoplesGrocers/json-archive/internal/jsonvalue"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 1
	}

	switch args[0] {
	case "create":
		return runCreate(args[1:])
	case "append":
		return runAppend(args[1:])
	case "info":
		return runInfo(args[1:])
	case "state":
		return runState(args[1:])
	default:
		// Implicit dispatch (spec.md §6): the first argument names an
		// archive => append; otherwise it's the first input of a new one.
		if archive.LooksLikeArchivePath(args[0]) {
			return runAppend(args)
		}
		return runCreate(args)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: json-archive [create] <inputs...> [-o OUT] [--force] [--source S] [-s N]")
	fmt.Fprintln(os.Stderr, "       json-archive <archive> <inputs...> [--source S] [-s N]")
	fmt.Fprintln(os.Stderr, "       json-archive info <archive> [--output human|json]")
	fmt.Fprintln(os.Stderr, "       json-archive state <archive> (--id ID | --index N | --as-of TS | --before TS | --after TS | --latest)")
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, err)
	return 1
}

// boolFlag names take no following value; everything else does. Needed
// because this CLI's documented surface puts flags after positional
// arguments (spec.md §6), which stdlib flag.FlagSet does not parse
// directly — reorderArgs moves recognized flag/value pairs to the front.
var boolFlags = map[string]bool{
	"force":  true,
	"latest": true,
}

// reorderArgs splits args into (flags-and-values, positionals), preserving
// relative order within each group, so flag.FlagSet.Parse (which stops at
// the first non-flag token) can still consume every flag regardless of
// where the user placed it on the command line.
func reorderArgs(args []string) []string {
	var flags, positionals []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			positionals = append(positionals, a)
			continue
		}
		name := strings.TrimLeft(a, "-")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			flags = append(flags, a)
			continue
		}
		flags = append(flags, a)
		if !boolFlags[name] && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return append(flags, positionals...)
}

func runCreate(args []string) int {
	fs := newFlagSet("create")
	out := fs.String("o", "", "output archive path")
	force := fs.Bool("force", false, "overwrite existing output")
	source := fs.String("source", "", "source label binding this archive")
	interval := fs.Int("s", archivecfg.DefaultSnapshotInterval, "observations between automatic snapshots")
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return 1
	}
	inputs := fs.Args()
	if len(inputs) == 0 {
		usage()
		return 1
	}

	outPath, err := archive.Create(inputs, archive.CreateOptions{
		OutPath:          *out,
		Force:            *force,
		Source:           *source,
		SnapshotInterval: *interval,
	})
	if err != nil {
		return fail(err)
	}
	fmt.Println(outPath)
	return 0
}

func runAppend(args []string) int {
	fs := newFlagSet("append")
	source := fs.String("source", "", "source label, refused if it mismatches the archive's")
	interval := fs.Int("s", archivecfg.DefaultSnapshotInterval, "observations between automatic snapshots")
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return 1
	}
	positional := fs.Args()
	if len(positional) < 2 {
		usage()
		return 1
	}

	results, err := archive.Append(positional[0], positional[1:], archive.AppendOptions{
		Source:           *source,
		SnapshotInterval: *interval,
	})
	if err != nil {
		return fail(err)
	}
	for _, r := range results {
		fmt.Printf("%s (index %d, %d change(s))\n", r.ObservationID, r.Index, r.ChangeCount)
	}
	return 0
}

func runInfo(args []string) int {
	fs := newFlagSet("info")
	output := fs.String("output", "human", "human or json")
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return 1
	}
	positional := fs.Args()
	if len(positional) != 1 {
		usage()
		return 1
	}

	info, err := archive.Info(positional[0])
	if err != nil {
		return fail(err)
	}

	switch *output {
	case "json":
		printInfoJSON(info)
	default:
		printInfoHuman(info)
	}
	return 0
}

func printInfoHuman(info archive.InfoResult) {
	fmt.Printf("version: %d\n", info.Version)
	fmt.Printf("created: %s\n", info.Created)
	if info.Source != "" {
		fmt.Printf("source: %s\n", info.Source)
	}
	fmt.Println("observations:")
	for _, o := range info.Observations {
		kind := "observe"
		if o.IsSnapshot {
			kind = "snapshot"
		}
		fmt.Printf("  [%d] %s id=%s ts=%s changes=%d size=%d\n", o.Index, kind, o.ID, o.Timestamp, o.ChangeCount, o.DerivedJSONSize)
	}
	fmt.Println("use 'json-archive state <archive> --index N' to inspect a reconstructed observation")
}

func printInfoJSON(info archive.InfoResult) {
	root := jsonvalue.NewObject()
	root.Set("version", jsonvalue.NewNumber(float64(info.Version)))
	root.Set("created", jsonvalue.NewString(info.Created))
	if info.Source != "" {
		root.Set("source", jsonvalue.NewString(info.Source))
	}
	observations := jsonvalue.NewArray()
	for _, o := range info.Observations {
		row := jsonvalue.NewObject()
		row.Set("index", jsonvalue.NewNumber(float64(o.Index)))
		row.Set("id", jsonvalue.NewString(o.ID))
		row.Set("timestamp", jsonvalue.NewString(o.Timestamp))
		row.Set("change_count", jsonvalue.NewNumber(float64(o.ChangeCount)))
		row.Set("is_snapshot", jsonvalue.NewBool(o.IsSnapshot))
		row.Set("derived_json_size", jsonvalue.NewNumber(float64(o.DerivedJSONSize)))
		observations.Append(row)
	}
	root.Set("observations", observations)

	data, err := jsonvalue.Marshal(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(data))
}

func runState(args []string) int {
	fs := newFlagSet("state")
	id := fs.String("id", "", "observation id")
	index := fs.Int("index", -1, "observation index")
	asOf := fs.String("as-of", "", "latest observation at or before this timestamp")
	before := fs.String("before", "", "latest observation strictly before this timestamp")
	after := fs.String("after", "", "earliest observation strictly after this timestamp")
	latest := fs.Bool("latest", false, "the most recent observation by timestamp")
	if err := fs.Parse(reorderArgs(args)); err != nil {
		return 1
	}
	positional := fs.Args()
	if len(positional) != 1 {
		usage()
		return 1
	}

	sel, err := selectorFromFlags(*id, *index, *asOf, *before, *after, *latest)
	if err != nil {
		return fail(err)
	}

	value, err := archive.State(positional[0], sel)
	if err != nil {
		return fail(err)
	}
	data, err := jsonvalue.Marshal(value)
	if err != nil {
		return fail(err)
	}
	fmt.Println(string(data))
	return 0
}

func selectorFromFlags(id string, index int, asOf, before, after string, latest bool) (archivefmt.Selector, error) {
	set := 0
	for _, on := range []bool{id != "", index >= 0, asOf != "", before != "", after != "", latest} {
		if on {
			set++
		}
	}
	if set > 1 {
		return archivefmt.Selector{}, fmt.Errorf("state requires exactly one of --id, --index, --as-of, --before, --after, --latest")
	}
	switch {
	case id != "":
		return archivefmt.Selector{Kind: archivefmt.SelectByID, ID: id}, nil
	case index >= 0:
		return archivefmt.Selector{Kind: archivefmt.SelectByIndex, Index: index}, nil
	case asOf != "":
		return archivefmt.Selector{Kind: archivefmt.SelectAsOf, Time: asOf}, nil
	case before != "":
		return archivefmt.Selector{Kind: archivefmt.SelectBefore, Time: before}, nil
	case after != "":
		return archivefmt.Selector{Kind: archivefmt.SelectAfter, Time: after}, nil
	case latest:
		return archivefmt.Selector{Kind: archivefmt.SelectLatest}, nil
	default:
		return archivefmt.Selector{}, fmt.Errorf("state requires exactly one of --id, --index, --as-of, --before, --after, --latest")
	}
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}
