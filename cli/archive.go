package cli

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/go-flist/internal/container"
)

var packCmd = &cobra.Command{
	Use:   "pack <output.flist>",
	Short: "Tar and gzip the archive's catalog into a single portable file",
	Args:  cobra.ExactArgs(1),
	RunE:  runPack,
}

func runPack(cmd *cobra.Command, args []string) error {
	if err := container.Create(args[0], archiveDir); err != nil {
		return fmt.Errorf("pack: %w", err)
	}
	log.Printf("packed %s into %s", archiveDir, args[0])
	return nil
}

var unpackCmd = &cobra.Command{
	Use:   "unpack <input.flist>",
	Short: "Extract a packed archive's catalog into the archive directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnpack,
}

func runUnpack(cmd *cobra.Command, args []string) error {
	if err := container.Extract(args[0], archiveDir); err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	log.Printf("unpacked %s into %s", args[0], archiveDir)
	return nil
}
