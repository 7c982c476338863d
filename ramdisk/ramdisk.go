// Package ramdisk implements block.Device entirely in memory. It exists so
// the fat32 engine can be exercised end to end — mount, open, read, write —
// without an SD card attached, per the "RAM-disk implementation suffices"
// requirement on the physical-layer interface. It is a production package,
// not test-only scaffolding: fat32's own tests import it, and a caller
// embedding this module on a host with no card (or during bring-up before
// the SPI bus is wired) can use it directly.
//
// Adapted from the teacher's BlockByteSlice/BlockMap test helpers
// (soypat/fat's vfs_test.go), promoted out of _test.go and narrowed to the
// block.Device triple this module's fat32 package actually consumes.
package ramdisk

import (
	"context"
	"fmt"

	"github.com/embeddedgo/sdfat/block"
)

// Device is a fixed-size, contiguous in-memory block device.
type Device struct {
	buf []byte
}

// New allocates a RAM disk of the given size in sectors, zero-filled.
func New(sectors int) *Device {
	return &Device{buf: make([]byte, sectors*block.SectorSize)}
}

// NewFromImage wraps an existing byte slice (e.g. a golden test image) as a
// RAM disk without copying it. len(image) must be a multiple of
// block.SectorSize.
func NewFromImage(image []byte) (*Device, error) {
	if len(image)%block.SectorSize != 0 {
		return nil, fmt.Errorf("ramdisk: image length %d is not a multiple of sector size %d", len(image), block.SectorSize)
	}
	return &Device{buf: image}, nil
}

// Sectors reports the capacity of the disk in sectors.
func (d *Device) Sectors() uint32 { return uint32(len(d.buf) / block.SectorSize) }

// Init is a no-op: a RAM disk is always ready.
func (d *Device) Init(ctx context.Context) error { return nil }

func (d *Device) bounds(sector uint32, count int) (start, end int, err error) {
	start = int(sector) * block.SectorSize
	end = start + count*block.SectorSize
	if count < 0 || start < 0 || end > len(d.buf) {
		return 0, 0, block.WrapIO(fmt.Errorf("ramdisk: sector range [%d,%d) out of bounds (capacity %d sectors)",
			sector, sector+uint32(count), d.Sectors()))
	}
	return start, end, nil
}

// ReadSectors implements block.Device.
func (d *Device) ReadSectors(dst []byte, sector uint32, count int) error {
	start, end, err := d.bounds(sector, count)
	if err != nil {
		return err
	}
	if len(dst) != end-start {
		return block.WrapIO(fmt.Errorf("ramdisk: dst is %d bytes, want %d", len(dst), end-start))
	}
	copy(dst, d.buf[start:end])
	return nil
}

// WriteSectors implements block.Device.
func (d *Device) WriteSectors(src []byte, sector uint32, count int) error {
	start, end, err := d.bounds(sector, count)
	if err != nil {
		return err
	}
	if len(src) != end-start {
		return block.WrapIO(fmt.Errorf("ramdisk: src is %d bytes, want %d", len(src), end-start))
	}
	copy(d.buf[start:end], src)
	return nil
}

// Bytes exposes the backing storage for test assertions and for building
// golden images; callers must not retain the slice across Device's
// lifetime if they intend to wrap it elsewhere.
func (d *Device) Bytes() []byte { return d.buf }
