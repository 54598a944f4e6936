package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/go-flist/internal/flist"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create an empty directory in the archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

func runMkdir(cmd *cobra.Command, args []string) error {
	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	defer closeArchive(ctx)

	if err := flist.Mkdir(ctx, args[0]); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	log.Printf("created directory %s", args[0])
	return nil
}
