package filedisk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/embeddedgo/sdfat/block"
)

func TestCreateThenReopenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	dev, err := Create(path, 4)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Sectors() != 4 {
		t.Fatalf("Sectors() = %d, want 4", dev.Sectors())
	}
	want := make([]byte, block.SectorSize)
	for i := range want {
		want[i] = byte(i)
	}
	if err := dev.WriteSectors(want, 2, 1); err != nil {
		t.Fatal(err)
	}
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}

	dev2, err := Open(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer dev2.Close()
	if dev2.Sectors() != 4 {
		t.Fatalf("Sectors() after reopen = %d, want 4", dev2.Sectors())
	}
	got := make([]byte, block.SectorSize)
	if err := dev2.ReadSectors(got, 2, 1); err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Fatal("read back data does not match what was written")
	}
}

func TestOpenRejectsMisalignedSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, make([]byte, block.SectorSize+1), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, true); err == nil {
		t.Fatal("expected Open to reject a file whose size isn't a sector multiple")
	}
}

func TestReadSectorsOutOfBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := Create(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	buf := make([]byte, block.SectorSize)
	if err := dev.ReadSectors(buf, 5, 1); err == nil {
		t.Fatal("expected out-of-bounds read to fail")
	}
}

func TestWriteSectorsRejectedOnReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := Create(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	dev.Close()

	ro, err := Open(path, true)
	if err != nil {
		t.Fatal(err)
	}
	defer ro.Close()

	if err := ro.WriteSectors(make([]byte, block.SectorSize), 0, 1); err == nil {
		t.Fatal("expected write to read-only device to fail")
	}
}

func TestInitIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	dev, err := Create(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	if err := dev.Init(context.Background()); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}
}
