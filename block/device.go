// Package block defines the physical-layer contract shared by every medium
// this module can mount — an SD card over SPI, a RAM disk, or a disk image
// file — and the single-sector read-through/write-through cache layered on
// top of it.
package block

import (
	"context"
	"errors"
	"fmt"
)

// SectorSize is the only sector size this module supports. Mount rejects any
// volume whose BIOS parameter block reports otherwise.
const SectorSize = 512

// ErrIO is the sentinel wrapped by every error a Device implementation
// returns when its underlying transport or storage fails, so callers can
// test with errors.Is without depending on a specific implementation's
// error type. sdspi.Card's protocol-level errors (an unexpected R1, a token
// or busy timeout, a rejected block) are returned without it.
var ErrIO = errors.New("block: device I/O error")

// Device is the physical-layer interface FS and Cache consume. sdspi.Card,
// ramdisk.Device and filedisk.Device are its three implementations in this
// module; a RAM disk is sufficient to exercise everything above this
// interface without a card attached.
type Device interface {
	// Init brings the device up (for sdspi.Card this runs the full SD
	// power-on sequence). RAM and file devices treat it as a no-op.
	Init(ctx context.Context) error
	// ReadSectors reads count sectors starting at sector into dst, which
	// must be exactly count*SectorSize bytes long.
	ReadSectors(dst []byte, sector uint32, count int) error
	// WriteSectors writes count sectors starting at sector from src, which
	// must be exactly count*SectorSize bytes long.
	WriteSectors(src []byte, sector uint32, count int) error
}

// WrapIO wraps a lower-level transfer error as ErrIO so callers above Device
// can match on it with errors.Is regardless of which Device implementation
// produced it. Device implementations should call this from ReadSectors and
// WriteSectors instead of returning raw errors.
func WrapIO(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}
