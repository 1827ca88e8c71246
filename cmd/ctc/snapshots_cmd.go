package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/loomworks/ctc/pkg/config"
	"github.com/loomworks/ctc/pkg/store"
)

// runSnapshotsCmd implements `ctc snapshots`.
//
// Reads the local snapshot database written by push/pull --snapshot.
// Without --name it lists a blueprint's snapshots newest first; with
// --name it shows the latest snapshot of that template, and -o writes
// its stored policy export, which `ctc diff --current` accepts. Only
// the local database is touched.
//
// Exit codes:
//
//	0 = listed
//	1 = no matching snapshot
//	2 = runtime error
func runSnapshotsCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		blueprintID string
		name        string
		outFile     string
		dbPath      string
		limit       int
		jsonOutput  bool
	)

	cmd.StringVar(&blueprintID, "blueprint", "", "Blueprint the snapshots belong to (REQUIRED)")
	cmd.StringVar(&name, "name", "", "Show only the latest snapshot of this template")
	cmd.StringVar(&outFile, "o", "", "With --name, write the stored policy export to this file")
	cmd.StringVar(&dbPath, "db", "", "Snapshot database path (default from CTC_SNAPSHOT_DB)")
	cmd.IntVar(&limit, "limit", 20, "Maximum snapshots to list")
	cmd.BoolVar(&jsonOutput, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	if blueprintID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --blueprint is required")
		return 2
	}

	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		dbPath = cfg.SnapshotDB
	}

	db, err := store.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer db.Close()
	st, err := store.NewSnapshotStore(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	if name != "" {
		return showLatest(ctx, st, blueprintID, name, outFile, jsonOutput, stdout, stderr)
	}

	snaps, err := st.List(ctx, blueprintID, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(snaps) == 0 {
		_, _ = fmt.Fprintf(stderr, "Error: no snapshots for blueprint %s in %s\n", blueprintID, dbPath)
		return 1
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(snapshotViews(snaps), "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
		return 0
	}
	for _, s := range snaps {
		_, _ = fmt.Fprintf(stdout, "%s  %-20s  %s  %s\n",
			s.CapturedAt.Format(time.RFC3339), s.Name, shortHash(s.CanonicalHash), s.CTID)
	}
	return 0
}

func showLatest(ctx context.Context, st *store.SnapshotStore, blueprintID, name, outFile string, jsonOutput bool, stdout, stderr io.Writer) int {
	snap, err := st.Latest(ctx, blueprintID, name)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, store.ErrNoSnapshot) {
			return 1
		}
		return 2
	}

	if outFile != "" {
		if err := writeOutput(outFile, snap.Export, stdout); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: cannot write %s: %v\n", outFile, err)
			return 2
		}
		if outFile != "-" {
			_, _ = fmt.Fprintf(stdout, "✅ Export written to %s\n", outFile)
		}
		return 0
	}

	if jsonOutput {
		out, _ := json.MarshalIndent(snapshotView(*snap), "", "  ")
		_, _ = fmt.Fprintln(stdout, string(out))
		return 0
	}
	_, _ = fmt.Fprintf(stdout, "Name: %s\n", snap.Name)
	_, _ = fmt.Fprintf(stdout, "CT id: %s\n", snap.CTID)
	_, _ = fmt.Fprintf(stdout, "Hash: %s\n", snap.CanonicalHash)
	_, _ = fmt.Fprintf(stdout, "Captured: %s\n", snap.CapturedAt.Format(time.RFC3339))
	return 0
}

func snapshotView(s store.Snapshot) map[string]any {
	return map[string]any{
		"name":           s.Name,
		"ct_id":          s.CTID,
		"canonical_hash": s.CanonicalHash,
		"captured_at":    s.CapturedAt.Format(time.RFC3339),
	}
}

func snapshotViews(snaps []store.Snapshot) []map[string]any {
	views := make([]map[string]any, len(snaps))
	for i, s := range snaps {
		views[i] = snapshotView(s)
	}
	return views
}
