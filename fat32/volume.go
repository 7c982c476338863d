// Package fat32 implements a read/write FAT32 volume and file layer over a
// block.Device: MBR/VBR parsing, cluster/sector arithmetic, FAT chain
// traversal, 8.3 directory lookup with long-name decoding for display, and
// byte-granular I/O through a fixed table of open-file handles.
package fat32

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/embeddedgo/sdfat/block"
	"github.com/embeddedgo/sdfat/internal/mbr"
)

// Geometry is the read-only table Mount populates from the MBR partition
// entry and the VBR, per §3 of the volume layout this package implements.
type Geometry struct {
	PartitionLBA      uint32
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	SectorsPerFAT32   uint32
	RootCluster       uint32
	FATStartSector    uint32
	DataStartSector   uint32
}

// EndOfChain is the canonical end-of-chain FAT entry value. Any entry
// greater than or equal to eocThreshold marks end of chain; free clusters
// read back as 0.
const (
	EndOfChain   uint32 = 0x0FFF_FFFF
	eocThreshold uint32 = 0x0FFF_FFF8
	fatEntryMask uint32 = 0x0FFF_FFFF
)

// Volume is a mounted FAT32 partition: geometry plus the single-sector
// cache shared by FAT lookups, directory scans and file I/O.
type Volume struct {
	dev   block.Device
	cache *block.Cache
	geo   Geometry
	log   *slog.Logger
}

// NewVolume wraps dev without touching the medium; call Mount before any
// other method. A nil logger defaults to a discard logger, matching the
// teacher's nil-safe *slog.Logger convention in fat.go.
func NewVolume(dev block.Device, log *slog.Logger) *Volume {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Volume{dev: dev, cache: block.NewCache(dev), log: log}
}

// Geometry returns the geometry table populated by Mount.
func (v *Volume) Geometry() Geometry { return v.geo }

// Mount reads the MBR and the VBR of the first FAT32 partition found
// (scanning all four MBR entries, accepting either FAT32 partition type
// byte 0x0B or 0x0C — real-world formatters are inconsistent about which
// one they stamp for LBA-addressed FAT32) and populates v.Geometry().
func (v *Volume) Mount(ctx context.Context) error {
	if err := v.dev.Init(ctx); err != nil {
		return fmt.Errorf("fat32: mount: device init: %w", err)
	}
	mbrSector, err := v.cache.Get(0)
	if err != nil {
		return fmt.Errorf("fat32: mount: read MBR: %w", err)
	}
	bs, err := mbr.ToBootSector(mbrSector)
	if err != nil {
		return fmt.Errorf("fat32: mount: %w", err)
	}
	if bs.BootSignature() != mbr.BootSignature {
		v.log.Warn("mount: bad MBR signature", "got", bs.BootSignature())
		return BadSignature
	}

	var pte *mbr.PartitionTableEntry
	for i := 0; i < 4; i++ {
		e := bs.PartitionTable(i)
		if e.PartitionType().IsFAT32() {
			pte = &e
			break
		}
	}
	if pte == nil {
		v.log.Warn("mount: no FAT32 partition entry found")
		return UnsupportedPartition
	}
	v.geo.PartitionLBA = pte.StartLBA()

	vbrSector, err := v.cache.Get(v.geo.PartitionLBA)
	if err != nil {
		return fmt.Errorf("fat32: mount: read VBR: %w", err)
	}
	// Get's return aliases the cache slot, which any later Get can evict;
	// work from a copy.
	var vbrCopy [block.SectorSize]byte
	copy(vbrCopy[:], vbrSector)
	bpb := vbr{data: vbrCopy[:]}

	if bpb.signature() != vbrSignature {
		v.log.Warn("mount: bad VBR signature", "got", bpb.signature())
		return BadSignature
	}
	if bpb.bytesPerSector() != block.SectorSize {
		v.log.Warn("mount: unsupported sector size", "bytes_per_sector", bpb.bytesPerSector())
		return UnsupportedSectorSize
	}

	v.geo.BytesPerSector = bpb.bytesPerSector()
	v.geo.SectorsPerCluster = bpb.sectorsPerCluster()
	v.geo.ReservedSectors = bpb.reservedSectors()
	v.geo.NumFATs = bpb.numFATs()
	v.geo.SectorsPerFAT32 = bpb.fatSize32()
	v.geo.RootCluster = bpb.rootCluster()
	v.geo.FATStartSector = v.geo.PartitionLBA + uint32(v.geo.ReservedSectors)
	v.geo.DataStartSector = v.geo.FATStartSector + uint32(v.geo.NumFATs)*v.geo.SectorsPerFAT32

	if total := bpb.totalSectors(); total != 0 && total != pte.NumberOfLBA() {
		v.log.Debug("mount: VBR/MBR sector count mismatch", "vbr_total", total, "mbr_size", pte.NumberOfLBA())
	}

	v.log.Info("mounted FAT32 volume",
		"partition_lba", v.geo.PartitionLBA,
		"sectors_per_cluster", v.geo.SectorsPerCluster,
		"root_cluster", v.geo.RootCluster,
		"data_start_sector", v.geo.DataStartSector,
	)
	return nil
}

// ClusterToSector converts a cluster number (≥ 2) to its first absolute
// sector.
func (v *Volume) ClusterToSector(c uint32) uint32 {
	return v.geo.DataStartSector + (c-2)*uint32(v.geo.SectorsPerCluster)
}

// FATEntry reads the 32-bit FAT entry for cluster c, masked to its
// significant 28 bits. Lookups in the same FAT sector hit the shared cache.
func (v *Volume) FATEntry(c uint32) (uint32, error) {
	byteOff := c * 4
	sector := v.geo.FATStartSector + byteOff/block.SectorSize
	off := byteOff % block.SectorSize
	data, err := v.cache.Get(sector)
	if err != nil {
		return 0, fmt.Errorf("fat32: FAT entry for cluster %d: %w", c, err)
	}
	return binary.LittleEndian.Uint32(data[off:]) & fatEntryMask, nil
}

// IsEndOfChain reports whether a FAT entry value marks end of chain.
func IsEndOfChain(entry uint32) bool { return entry >= eocThreshold }

// WalkChain follows k links in the cluster chain starting at first. If
// end-of-chain is reached before k hops, it returns the terminal cluster
// and the number of hops actually made; callers compare consumed == k to
// detect a chain that ran out before satisfying the request.
func (v *Volume) WalkChain(first uint32, k int) (cluster uint32, consumed int, err error) {
	cluster = first
	for consumed = 0; consumed < k; consumed++ {
		entry, err := v.FATEntry(cluster)
		if err != nil {
			return cluster, consumed, err
		}
		if IsEndOfChain(entry) {
			return cluster, consumed, nil
		}
		cluster = entry
	}
	return cluster, consumed, nil
}
