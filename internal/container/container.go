// Package container implements the archive container format: a
// single tar-gz whose sole top-level member is the catalog store
// file, named flistdb.sqlite3 for legacy reasons. It uses the
// concurrent pgzip implementation instead of stdlib compress/gzip.
package container

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"

	"github.com/threefoldtech/go-flist/internal/flist"
	"github.com/threefoldtech/go-flist/internal/flisterr"
)

// Create tars and gzips the catalog file found at dir/flistdb.sqlite3
// into a single archive at archivePath.
func Create(archivePath, dir string) error {
	dbPath := filepath.Join(dir, flist.CatalogFileName)
	info, err := os.Stat(dbPath)
	if err != nil {
		return fmt.Errorf("%w: container: stat %s: %v", flisterr.IOError, dbPath, err)
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("%w: container: create %s: %v", flisterr.IOError, archivePath, err)
	}
	defer out.Close()

	gz := pgzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("container: build tar header: %w", err)
	}
	hdr.Name = flist.CatalogFileName

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("%w: container: write tar header: %v", flisterr.IOError, err)
	}

	in, err := os.Open(dbPath)
	if err != nil {
		return fmt.Errorf("%w: container: open %s: %v", flisterr.IOError, dbPath, err)
	}
	defer in.Close()

	if _, err := io.Copy(tw, in); err != nil {
		return fmt.Errorf("%w: container: write catalog into archive: %v", flisterr.IOError, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: container: close tar writer: %v", flisterr.IOError, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("%w: container: close gzip writer: %v", flisterr.IOError, err)
	}
	return nil
}

// Extract untars archivePath into dir, writing exactly the catalog
// file named flistdb.sqlite3. Any other member name is rejected —
// the container's contract is a single known file, not a general
// tarball.
func Extract(archivePath, dir string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: container: open %s: %v", flisterr.IOError, archivePath, err)
	}
	defer in.Close()

	gz, err := pgzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("%w: container: open gzip stream: %v", flisterr.CorruptArchive, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: container: mkdir %s: %v", flisterr.IOError, dir, err)
	}

	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: container: read tar entry: %v", flisterr.CorruptArchive, err)
		}
		if hdr.Name != flist.CatalogFileName {
			return fmt.Errorf("%w: container: unexpected archive member %q", flisterr.CorruptArchive, hdr.Name)
		}
		found = true

		dst := filepath.Join(dir, flist.CatalogFileName)
		out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("%w: container: create %s: %v", flisterr.IOError, dst, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("%w: container: write %s: %v", flisterr.IOError, dst, err)
		}
		if err := out.Close(); err != nil {
			return fmt.Errorf("%w: container: close %s: %v", flisterr.IOError, dst, err)
		}
	}

	if !found {
		return fmt.Errorf("%w: container: archive has no %s member", flisterr.CorruptArchive, flist.CatalogFileName)
	}
	return nil
}
