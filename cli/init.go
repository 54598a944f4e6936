package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/go-flist/internal/flist"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new flist archive",
	Long:  "Creates the archive directory (if needed) and a fresh catalog containing just the root directory.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx, err := flist.Init(archiveDir)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer closeArchive(ctx)

	log.Printf("initialized archive at %s", archiveDir)
	return nil
}
