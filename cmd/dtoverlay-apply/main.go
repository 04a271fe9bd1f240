// Command dtoverlay-apply drives overlay.Manager from the command line: it
// decodes a base flat-devicetree blob into a live tree, applies one or more
// overlay blobs against it, and reports the resulting changeset ids and
// registry state. It exists to exercise fdt_apply/remove/remove_all
// end-to-end against real blobs without embedding the engine in a larger
// program.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ngicks/dtoverlay/dtblob"
	"github.com/ngicks/dtoverlay/dtnode"
	"github.com/ngicks/dtoverlay/overlay"
	"github.com/spf13/afero"
)

var (
	liveBlob    = flag.String("live", "", "path to the base flat-devicetree blob")
	overlayList = flag.String("overlays", "", "comma-separated paths to overlay blobs, applied in order")
	removeIDs   = flag.String("remove", "", "comma-separated changeset ids to remove after applying -overlays")
	removeAll   = flag.Bool("remove-all", false, "remove every applied changeset, tail to head, after -overlays")
)

func main() {
	flag.Parse()
	if err := run(afero.NewOsFs()); err != nil {
		log.Fatalf("dtoverlay-apply: %v", err)
	}
}

func run(fs afero.Fs) error {
	if *liveBlob == "" {
		return errors.New("-live is required")
	}

	raw, err := afero.ReadFile(fs, *liveBlob)
	if err != nil {
		return fmt.Errorf("reading live blob: %w", err)
	}
	root, err := dtblob.Decode(raw)
	if err != nil {
		return fmt.Errorf("decoding live blob: %w", err)
	}
	live := dtnode.NewTree(root)

	mgr := overlay.NewManager(live)

	for _, path := range splitNonEmpty(*overlayList) {
		ov, err := afero.ReadFile(fs, path)
		if err != nil {
			return fmt.Errorf("reading overlay %q: %w", path, err)
		}
		id, err := mgr.Apply(ov, nil)
		if err != nil {
			return fmt.Errorf("applying overlay %q: %w", path, err)
		}
		fmt.Printf("applied %s as changeset %d\n", path, id)
	}

	for _, idStr := range splitNonEmpty(*removeIDs) {
		var id int
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return fmt.Errorf("parsing -remove id %q: %w", idStr, err)
		}
		var out int
		if err := mgr.Remove(id, &out); err != nil {
			return fmt.Errorf("removing changeset %d: %w", id, err)
		}
		fmt.Printf("removed changeset %d\n", id)
	}

	if *removeAll {
		if err := mgr.RemoveAll(); err != nil {
			return fmt.Errorf("remove-all: %w", err)
		}
		fmt.Println("removed all changesets")
	}

	applied := mgr.Applied()
	fmt.Printf("%d changeset(s) applied: %v\n", len(applied), applied)
	if applyFail, revertFail := mgr.LatchState(); applyFail || revertFail {
		fmt.Printf("latch: apply_fail=%v revert_fail=%v\n", applyFail, revertFail)
		os.Exit(1)
	}
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
