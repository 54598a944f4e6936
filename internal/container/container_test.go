package container

import (
	"archive/tar"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/pgzip"

	"github.com/threefoldtech/go-flist/internal/flist"
)

func writeBogusArchive(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := pgzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	body := []byte("not a catalog")
	if err := tw.WriteHeader(&tar.Header{Name: "unexpected.txt", Mode: 0644, Size: int64(len(body))}); err != nil {
		return err
	}
	if _, err := tw.Write(body); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func TestCreateExtractRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	ctx, err := flist.Init(srcDir)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := ctx.DB.Close(); err != nil {
		t.Fatalf("close catalog: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), "out.flist")
	if err := Create(archivePath, srcDir); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		t.Fatalf("stat archive: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("archive is empty")
	}

	dstDir := t.TempDir()
	if err := Extract(archivePath, dstDir); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	srcDB := filepath.Join(srcDir, flist.CatalogFileName)
	dstDB := filepath.Join(dstDir, flist.CatalogFileName)

	srcBytes, err := os.ReadFile(srcDB)
	if err != nil {
		t.Fatalf("read source catalog: %v", err)
	}
	dstBytes, err := os.ReadFile(dstDB)
	if err != nil {
		t.Fatalf("read extracted catalog: %v", err)
	}
	if len(srcBytes) != len(dstBytes) {
		t.Fatalf("catalog size mismatch: src %d dst %d", len(srcBytes), len(dstBytes))
	}
}

func TestExtractRejectsUnknownMember(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "bogus.flist")
	if err := writeBogusArchive(archivePath); err != nil {
		t.Fatalf("build bogus archive: %v", err)
	}

	if err := Extract(archivePath, t.TempDir()); err == nil {
		t.Fatal("expected error extracting archive with unexpected member")
	}
}
