package cli

import (
	"log"

	"github.com/threefoldtech/go-flist/internal/colors"
	"github.com/threefoldtech/go-flist/internal/flist"
	"github.com/threefoldtech/go-flist/internal/flistctx"
)

func colorError(err error) string {
	return colors.ErrorText(err.Error())
}

// openArchive opens the archive at the --dir flag's value, failing
// with a clear message if it hasn't been initialized yet.
func openArchive() (*flistctx.Context, error) {
	return flist.Open(archiveDir)
}

func closeArchive(ctx *flistctx.Context) {
	if err := ctx.Close(); err != nil {
		log.Printf("warning: closing archive: %v", err)
	}
}
