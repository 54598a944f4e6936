package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/go-flist/internal/flist"
)

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <path>",
	Short: "Recursively remove a directory and everything beneath it",
	Args:  cobra.ExactArgs(1),
	RunE:  runRmdir,
}

func runRmdir(cmd *cobra.Command, args []string) error {
	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("rmdir: %w", err)
	}
	defer closeArchive(ctx)

	if err := flist.Rmdir(ctx, args[0]); err != nil {
		return fmt.Errorf("rmdir: %w", err)
	}
	log.Printf("removed directory %s", args[0])
	return nil
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Remove a non-directory entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	defer closeArchive(ctx)

	if err := flist.Rm(ctx, args[0]); err != nil {
		return fmt.Errorf("rm: %w", err)
	}
	log.Printf("removed %s", args[0])
	return nil
}
