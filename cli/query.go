package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/go-flist/internal/colors"
	"github.com/threefoldtech/go-flist/internal/dirtree"
	"github.com/threefoldtech/go-flist/internal/flist"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List the immediate children of a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	p := ""
	if len(args) == 1 {
		p = args[0]
	}

	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}
	defer closeArchive(ctx)

	entries, err := flist.Ls(ctx, p)
	if err != nil {
		return fmt.Errorf("ls: %w", err)
	}

	for _, e := range entries {
		printEntryLine(e)
	}
	return nil
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Print the metadata of a single archive entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runStat,
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	defer closeArchive(ctx)

	e, err := flist.Stat(ctx, args[0])
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	printEntryLine(e)
	return nil
}

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Walk the whole archive tree and print every entry with aggregate stats",
	Args:  cobra.NoArgs,
	RunE:  runFind,
}

func runFind(cmd *cobra.Command, args []string) error {
	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}
	defer closeArchive(ctx)

	entries, stats, err := flist.Find(ctx)
	if err != nil {
		return fmt.Errorf("find: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("/%s\n", e.Path)
	}
	fmt.Println(colors.SectionHeader("Summary:"))
	fmt.Printf("  regular files: %d\n", stats.Regular)
	fmt.Printf("  directories:   %d\n", stats.Directories)
	fmt.Printf("  symlinks:      %d\n", stats.Symlinks)
	fmt.Printf("  special files: %d\n", stats.Specials)
	fmt.Printf("  total size:    %d bytes\n", stats.TotalSize)
	return nil
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Reassemble a regular file's plaintext from its chunk manifest and print it to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runCat,
}

func runCat(cmd *cobra.Command, args []string) error {
	ctx, err := openArchive()
	if err != nil {
		return fmt.Errorf("cat: %w", err)
	}
	defer closeArchive(ctx)

	if err := flist.Cat(ctx, args[0], os.Stdout); err != nil {
		return fmt.Errorf("cat: %w", err)
	}
	return nil
}

func printEntryLine(e flist.Entry) {
	name := e.Name
	if name == "" {
		name = "."
	}
	kind := kindName(e.Kind)
	fmt.Printf("%s%s %s:%s %8d %s\n",
		colors.KindLetter(kind), colors.ModeString(e.Mode),
		e.Uname, e.Gname, e.Size, colors.ColorizeEntryName(kind, name))
}

func kindName(k dirtree.Kind) string {
	switch k {
	case dirtree.KindDirectory:
		return "directory"
	case dirtree.KindSymlink:
		return "symlink"
	case dirtree.KindSpecial:
		return "special"
	default:
		return "regular"
	}
}
