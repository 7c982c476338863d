// Package filedisk implements block.Device over a regular file, so
// cmd/sdfatctl can mount a disk image on the host exactly as fat32.Volume
// mounts an sdspi.Card or a ramdisk.Device. Grounded on the teacher's
// BlockByteSlice test helper (soypat/fat's vfs_test.go) generalized from an
// in-memory buffer to a file, with an advisory lock so two sdfatctl
// invocations against the same image don't race.
package filedisk

import (
	"context"
	"fmt"
	"os"

	"github.com/embeddedgo/sdfat/block"
)

// Device is a block.Device backed by a single file. Sector 0 of the device
// is byte offset 0 of the file.
type Device struct {
	f        *os.File
	sectors  uint32
	readOnly bool
}

// Open opens an existing disk image file. If readOnly is false, Open takes
// an advisory exclusive lock on the file for the lifetime of Device (see
// filedisk_unix.go); the lock is best-effort and absent on non-Unix
// targets.
func Open(path string, readOnly bool) (*Device, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, block.WrapIO(fmt.Errorf("filedisk: open %s: %w", path, err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, block.WrapIO(fmt.Errorf("filedisk: stat %s: %w", path, err))
	}
	if info.Size()%block.SectorSize != 0 {
		f.Close()
		return nil, block.WrapIO(fmt.Errorf("filedisk: %s size %d is not a multiple of sector size %d",
			path, info.Size(), block.SectorSize))
	}
	if !readOnly {
		if err := lockFile(f); err != nil {
			f.Close()
			return nil, block.WrapIO(fmt.Errorf("filedisk: lock %s: %w", path, err))
		}
	}
	return &Device{f: f, sectors: uint32(info.Size() / block.SectorSize), readOnly: readOnly}, nil
}

// Create makes a new zero-filled disk image of the given size in sectors
// and opens it for read-write access.
func Create(path string, sectors uint32) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, block.WrapIO(fmt.Errorf("filedisk: create %s: %w", path, err))
	}
	if err := f.Truncate(int64(sectors) * block.SectorSize); err != nil {
		f.Close()
		os.Remove(path)
		return nil, block.WrapIO(fmt.Errorf("filedisk: truncate %s: %w", path, err))
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, block.WrapIO(fmt.Errorf("filedisk: lock %s: %w", path, err))
	}
	return &Device{f: f, sectors: sectors}, nil
}

// Sectors reports the capacity of the backing file in sectors.
func (d *Device) Sectors() uint32 { return d.sectors }

// Close releases the file and its advisory lock.
func (d *Device) Close() error { return d.f.Close() }

// Init is a no-op: the file is ready as soon as it's open.
func (d *Device) Init(ctx context.Context) error { return nil }

func (d *Device) bounds(sector uint32, count int) (start, end int64, err error) {
	start = int64(sector) * block.SectorSize
	end = start + int64(count)*block.SectorSize
	if count < 0 || start < 0 || end > int64(d.sectors)*block.SectorSize {
		return 0, 0, block.WrapIO(fmt.Errorf("filedisk: sector range [%d,%d) out of bounds (capacity %d sectors)",
			sector, sector+uint32(count), d.sectors))
	}
	return start, end, nil
}

// ReadSectors implements block.Device.
func (d *Device) ReadSectors(dst []byte, sector uint32, count int) error {
	start, end, err := d.bounds(sector, count)
	if err != nil {
		return err
	}
	if int64(len(dst)) != end-start {
		return block.WrapIO(fmt.Errorf("filedisk: dst is %d bytes, want %d", len(dst), end-start))
	}
	if _, err := d.f.ReadAt(dst, start); err != nil {
		return block.WrapIO(err)
	}
	return nil
}

// WriteSectors implements block.Device.
func (d *Device) WriteSectors(src []byte, sector uint32, count int) error {
	if d.readOnly {
		return block.WrapIO(fmt.Errorf("filedisk: write to read-only device"))
	}
	start, end, err := d.bounds(sector, count)
	if err != nil {
		return err
	}
	if int64(len(src)) != end-start {
		return block.WrapIO(fmt.Errorf("filedisk: src is %d bytes, want %d", len(src), end-start))
	}
	if _, err := d.f.WriteAt(src, start); err != nil {
		return block.WrapIO(err)
	}
	return nil
}
