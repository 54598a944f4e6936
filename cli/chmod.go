package cli

import (
	"fmt"
	"log"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/go-flist/internal/flist"
)

var chmodCmd = &cobra.Command{
	Use:   "chmod <mode> <path>",
	Short: "Change the permission bits of an archive entry",
	Long:  "mode is an octal permission string, e.g. 755 or 0644. Bits above the low 9 (setuid, setgid, sticky) are preserved.",
	Args:  cobra.ExactArgs(2),
	RunE:  runChmod,
}

func runChmod(cmd *cobra.Command, args []string) error {
	mode, err := strconv.ParseUint(args[0], 8, 16)
	if err != nil {
		return fmt.Errorf("chmod: invalid mode %q: %w", args[0], err)
	}

	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	defer closeArchive(ctx)

	if err := flist.Chmod(ctx, args[1], uint16(mode)); err != nil {
		return fmt.Errorf("chmod: %w", err)
	}
	log.Printf("changed mode of %s to %o", args[1], mode&0o777)
	return nil
}
