package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/go-flist/internal/flist"
)

var putCmd = &cobra.Command{
	Use:   "put <local-file> <dst>",
	Short: "Chunk and ingest a local file into the archive",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	defer closeArchive(ctx)

	if err := flist.Put(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	log.Printf("put %s -> %s", args[0], args[1])
	return nil
}

var putdirCmd = &cobra.Command{
	Use:   "putdir <local-dir> <dst>",
	Short: "Recursively ingest a local directory tree into the archive",
	Args:  cobra.ExactArgs(2),
	RunE:  runPutDir,
}

func runPutDir(cmd *cobra.Command, args []string) error {
	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("putdir: %w", err)
	}
	defer closeArchive(ctx)

	if err := flist.PutDir(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("putdir: %w", err)
	}
	snap := ctx.Stats.Snapshot()
	log.Printf("putdir %s -> %s (%d regular, %d directories, %d symlinks, %d special)",
		args[0], args[1], snap.Regular, snap.Directories, snap.Symlinks, snap.Specials)
	return nil
}
