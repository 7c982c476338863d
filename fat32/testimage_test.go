package fat32

import (
	"encoding/binary"

	"github.com/embeddedgo/sdfat/block"
	"github.com/embeddedgo/sdfat/internal/mbr"
	"github.com/embeddedgo/sdfat/ramdisk"
	"golang.org/x/text/encoding/unicode"
)

// Fixed geometry shared by every hand-built test image: one sector per
// cluster, a single one-sector FAT (128 entries, clusters 0-127), root
// directory at cluster 2 occupying exactly one sector. Files placed by the
// tests follow the worked example (HELLO.TXT at first_cluster=3, size=13);
// MBR partition 0 is stamped type 0x0C, which Mount accepts alongside 0x0B.
const (
	testPartitionLBA    = 1
	testReservedSectors = 1
	testNumFATs         = 1
	testFATSectors      = 1
	testFATStart        = testPartitionLBA + testReservedSectors
	testDataStart       = testFATStart + testNumFATs*testFATSectors
	testRootCluster     = 2
	testTotalSectors    = 64
)

type testDirEntry struct {
	name83       [11]byte
	longName     string // if non-empty, preceding LFN entries are synthesized
	attr         byte
	firstCluster uint32
	size         uint32
}

// utf16Units encodes s as UTF-16LE code units, no BOM.
func utf16Units(s string) []uint16 {
	raw, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		panic(err)
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return units
}

// buildLFNEntries returns the 32-byte LFN entries for name, in the on-disk
// order a directory scan encounters them (highest sequence number first,
// terminating at sequence 1 immediately before the short entry).
func buildLFNEntries(name string, shortChecksum byte) [][32]byte {
	units := utf16Units(name)
	units = append(units, 0) // null terminator
	for len(units)%13 != 0 {
		units = append(units, 0xFFFF) // pad filler
	}
	n := len(units) / 13

	var out [][32]byte
	for i := n - 1; i >= 0; i-- {
		chunk := units[i*13 : i*13+13]
		var e [32]byte
		seq := byte(i + 1)
		if i == n-1 {
			seq |= ldirLastEntryFlag
		}
		e[ldirOrder] = seq
		e[ldirAttr] = attrLongName
		e[ldirChecksum] = shortChecksum
		put := func(off int, us []uint16) {
			for j, u := range us {
				binary.LittleEndian.PutUint16(e[off+2*j:], u)
			}
		}
		put(ldirName1, chunk[0:5])
		put(ldirName2, chunk[5:11])
		put(ldirName3, chunk[11:13])
		out = append(out, e)
	}
	return out
}

// clusterSector converts a cluster number to its absolute sector under this
// file's fixed one-sector-per-cluster geometry.
func clusterSector(c uint32) uint32 { return testDataStart + (c - testRootCluster) }

// buildImage lays out an MBR + VBR + one-sector FAT + root directory on a
// fresh RAM disk, writes entries into the root directory (spilling across
// rootChain's clusters in order, 16 slots per sector, once a chain needs
// more than the default single cluster), and writes chains into the FAT so
// each cluster in chains[i] points at chains[i+1] (or end-of-chain for the
// last element). data supplies the raw bytes to place at each cluster's
// sector, keyed by cluster number. rootChain defaults to {testRootCluster}
// alone; pass additional (non-contiguous is fine — FAT32 roots need not be
// contiguous) clusters when a test needs more than 16 root entries.
func buildImage(entries []testDirEntry, chains [][]uint32, data map[uint32][]byte, rootChain ...uint32) *ramdisk.Device {
	if len(rootChain) == 0 {
		rootChain = []uint32{testRootCluster}
	}
	dev := ramdisk.New(testTotalSectors)
	buf := dev.Bytes()

	// MBR
	bs, err := mbr.ToBootSector(buf[0:512])
	if err != nil {
		panic(err)
	}
	pte := mbr.MakePTE(0, mbr.PartitionTypeFAT32LBA, testPartitionLBA, testTotalSectors-testPartitionLBA, mbr.NewCHS(0, 0, 0), mbr.NewCHS(0, 0, 0))
	bs.SetPartitionTable(0, pte)
	binary.LittleEndian.PutUint16(buf[510:512], mbr.BootSignature)

	// VBR
	vbrOff := testPartitionLBA * block.SectorSize
	vbrBuf := buf[vbrOff : vbrOff+512]
	binary.LittleEndian.PutUint16(vbrBuf[bpbBytesPerSector:], 512)
	vbrBuf[bpbSectorsPerCluster] = 1
	binary.LittleEndian.PutUint16(vbrBuf[bpbReservedSectors:], testReservedSectors)
	vbrBuf[bpbNumFATs] = testNumFATs
	binary.LittleEndian.PutUint32(vbrBuf[bpbFATSize32:], testFATSectors)
	binary.LittleEndian.PutUint32(vbrBuf[bpbRootCluster:], testRootCluster)
	binary.LittleEndian.PutUint32(vbrBuf[bpbTotalSectors32:], testTotalSectors-testPartitionLBA)
	binary.LittleEndian.PutUint16(vbrBuf[bsSignatureOffset:], vbrSignature)

	// FAT: one sector, 128 4-byte entries.
	fatSectorOff := testFATStart * block.SectorSize
	fatBuf := buf[fatSectorOff : fatSectorOff+512]
	setEntry := func(c uint32, v uint32) {
		binary.LittleEndian.PutUint32(fatBuf[c*4:], v&fatEntryMask)
	}
	setEntry(0, 0x0FFFFFF8)
	setEntry(1, EndOfChain)
	for i, c := range rootChain {
		if i+1 < len(rootChain) {
			setEntry(c, rootChain[i+1])
		} else {
			setEntry(c, EndOfChain)
		}
	}
	for _, chain := range chains {
		for i, c := range chain {
			if i+1 < len(chain) {
				setEntry(c, chain[i+1])
			} else {
				setEntry(c, EndOfChain)
			}
		}
	}

	// Root directory: 16 32-byte entries per sector, one sector per chained
	// cluster, terminated by a zeroed (name[0]==0x00) entry if the chain has
	// spare slots — the RAM disk is already zero-filled.
	const entriesPerSector = block.SectorSize / dirEntrySize
	rootSlot := func(slot int) []byte {
		cluster := rootChain[slot/entriesPerSector]
		sector := clusterSector(cluster)
		off := sector*block.SectorSize + (slot%entriesPerSector)*dirEntrySize
		return buf[off : off+dirEntrySize]
	}
	slot := 0
	for _, e := range entries {
		if e.longName != "" {
			for _, lfn := range buildLFNEntries(e.longName, shortNameChecksum(e.name83)) {
				copy(rootSlot(slot), lfn[:])
				slot++
			}
		}
		d := dirEntry{data: rootSlot(slot)}
		copy(d.data[dirName:dirName+11], e.name83[:])
		d.data[dirAttr] = e.attr
		binary.LittleEndian.PutUint16(d.data[dirFstClusHI:], uint16(e.firstCluster>>16))
		binary.LittleEndian.PutUint16(d.data[dirFstClusLO:], uint16(e.firstCluster))
		d.setFileSize(e.size)
		slot++
	}

	for c, bytes := range data {
		sector := clusterSector(c)
		off := sector * block.SectorSize
		copy(buf[off:off+512], bytes)
	}

	return dev
}

func mustEncode83(name string) [11]byte {
	enc, err := encode83(name)
	if err != nil {
		panic(err)
	}
	return enc
}
