// Package cli implements the flist command-line front end: a thin
// cobra-based dispatcher over the internal/flist mutation API, one
// command per file, wired up in cli.go's init(). Process exit
// (os.Exit in Execute) is confined to this package — internal/*
// packages only ever return errors.
package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/go-flist/internal/flisterr"
)

const flistVersion = "0.1.0"

var version bool

var archiveDir string

var rootCmd = &cobra.Command{
	Use:   "flist",
	Short: "flist builds and inspects content-addressed archive catalogs",
	Long:  "flist manages a content-addressed directory-tree catalog: initialize an archive, mutate its tree, and pack/unpack it as a single portable file.",
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("flist version %s\n", flistVersion)
			os.Exit(0)
		}
		cmd.Help()
	},
}

// Execute runs the root command, translating any returned error into
// a process exit code (1 on any failure).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Println(colorError(err))
		os.Exit(flisterr.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&archiveDir, "dir", ".", "archive directory (holds flistdb.sqlite3)")
	rootCmd.Flags().BoolVar(&version, "version", false, "print the flist version")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(rmdirCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(chmodCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(putdirCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(packCmd)
	rootCmd.AddCommand(unpackCmd)
	rootCmd.AddCommand(configCmd)
}
