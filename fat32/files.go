package fat32

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/embeddedgo/sdfat/block"
)

// maxHandles is the fixed capacity of the open-file table, matching the
// "≥ 32 slots" floor this layout is required to provide.
const maxHandles = 32

// Handle identifies an open file by its slot index in the Files table.
type Handle int

type handleSlot struct {
	inUse          bool
	shortName      [11]byte
	longName       string
	hasLongName    bool
	attr           byte
	firstCluster   uint32
	size           uint32
	modDate        uint16
	modTime        uint16
	rootEntryIndex uint32 // absolute 32-byte-entry index within the root chain
	rd, wr         uint32
}

// Files is the open-file layer over a mounted Volume: root-directory scan,
// a fixed handle table, and byte-granular read/write bounded by each
// file's existing allocation.
type Files struct {
	vol   *Volume
	slots [maxHandles]handleSlot
	log   *slog.Logger
}

// NewFiles builds the file layer over an already-mounted volume.
func NewFiles(vol *Volume, log *slog.Logger) *Files {
	if log == nil {
		log = vol.log
	}
	return &Files{vol: vol, log: log}
}

func (f *Files) freeSlot() (int, bool) {
	for i := range f.slots {
		if !f.slots[i].inUse {
			return i, true
		}
	}
	return 0, false
}

func (f *Files) slot(h Handle) (*handleSlot, error) {
	if h < 0 || int(h) >= len(f.slots) || !f.slots[h].inUse {
		return nil, InvalidHandle
	}
	return &f.slots[h], nil
}

// Open encodes name as an 8.3 short name and scans the root directory
// chain for a matching entry, per the short-name lookup procedure this
// layer implements. Long-name components preceding a match are decoded
// for display via LongName but never participate in the comparison.
func (f *Files) Open(name string) (Handle, error) {
	enc, err := encode83(name)
	if err != nil {
		return -1, err
	}

	cluster := f.vol.geo.RootCluster
	pending := make(map[int]lfnEntry)
	var absIndex uint32

	for {
		base := f.vol.ClusterToSector(cluster)
		for s := uint32(0); s < uint32(f.vol.geo.SectorsPerCluster); s++ {
			data, err := f.vol.cache.Get(base + s)
			if err != nil {
				return -1, fmt.Errorf("fat32: open %q: %w", name, err)
			}
			for off := 0; off < block.SectorSize; off += dirEntrySize {
				raw := data[off : off+dirEntrySize]
				d := dirEntry{data: raw}

				switch {
				case d.isFree():
					return -1, NotFound
				case d.isDeleted():
					pending = make(map[int]lfnEntry)
				case d.isLFN():
					l := lfnEntry{data: raw}
					pending[l.sequence()] = l
				case d.shortName() == enc:
					idx, ok := f.freeSlot()
					if !ok {
						return -1, TooManyOpen
					}
					long, hasLong := decodeLongName(pending, enc)
					date, tim := d.modTime()
					f.slots[idx] = handleSlot{
						inUse:          true,
						shortName:      enc,
						longName:       long,
						hasLongName:    hasLong,
						attr:           d.attr(),
						firstCluster:   d.firstCluster(),
						size:           d.fileSize(),
						modDate:        date,
						modTime:        tim,
						rootEntryIndex: absIndex,
					}
					f.log.Debug("open", "name", name, "handle", idx, "size", d.fileSize(), "first_cluster", d.firstCluster())
					return Handle(idx), nil
				default:
					pending = make(map[int]lfnEntry)
				}
				absIndex++
			}
		}
		next, consumed, err := f.vol.WalkChain(cluster, 1)
		if err != nil {
			return -1, err
		}
		if consumed == 0 {
			return -1, NotFound
		}
		cluster = next
	}
}

// LongName returns h's display name: the long file name decoded from the
// LFN entries immediately preceding its short entry, if any were present,
// or otherwise its short name decoded back from 8.3 form. The bool
// reports whether an LFN chain was actually present — false means name is
// the decode83 fallback, not a lie about the medium having no name at all.
func (f *Files) LongName(h Handle) (string, bool) {
	s, err := f.slot(h)
	if err != nil {
		return "", false
	}
	if s.hasLongName {
		return s.longName, true
	}
	return decode83(s.shortName), false
}

// Size returns h's current byte size as recorded in its root entry.
func (f *Files) Size(h Handle) (uint32, error) {
	s, err := f.slot(h)
	if err != nil {
		return 0, err
	}
	return s.size, nil
}

// ModTime decodes h's last-modified timestamp from the packed date/time
// fields most recently loaded from (Open) or written to (Write) its root
// entry.
func (f *Files) ModTime(h Handle) (time.Time, error) {
	s, err := f.slot(h)
	if err != nil {
		return time.Time{}, err
	}
	return fatDate(s.modDate).toTime(fatTime(s.modTime)), nil
}

// sectorForOffset resolves the absolute medium sector holding byte offset
// rd within a file's cluster chain, and the byte's position within it.
func (f *Files) sectorForOffset(firstCluster, rd uint32) (sector, byteInSector uint32, err error) {
	spc := uint32(f.vol.geo.SectorsPerCluster)
	sectorInFile := rd / block.SectorSize
	clusterOffset := sectorInFile / spc
	sectorInCluster := sectorInFile % spc

	cluster, consumed, err := f.vol.WalkChain(firstCluster, int(clusterOffset))
	if err != nil {
		return 0, 0, err
	}
	if uint32(consumed) != clusterOffset {
		return 0, 0, ChainTruncated
	}
	return f.vol.ClusterToSector(cluster) + sectorInCluster, rd % block.SectorSize, nil
}

// Read copies up to len(buf) bytes starting at h's read cursor, advancing
// it by the number of bytes returned. Reaching size on entry (not mid-read)
// is reported as Eof rather than a zero-length success.
func (f *Files) Read(h Handle, buf []byte) (int, error) {
	s, err := f.slot(h)
	if err != nil {
		return 0, err
	}
	if s.rd >= s.size {
		return 0, Eof
	}

	var n int
	for n < len(buf) && s.rd < s.size {
		sector, byteInSector, err := f.sectorForOffset(s.firstCluster, s.rd)
		if err != nil {
			return n, err
		}
		data, err := f.vol.cache.Get(sector)
		if err != nil {
			return n, fmt.Errorf("fat32: read handle %d: %w", h, err)
		}
		take := block.SectorSize - byteInSector
		if rem := s.size - s.rd; rem < take {
			take = rem
		}
		if want := uint32(len(buf) - n); want < take {
			take = want
		}
		copy(buf[n:], data[byteInSector:byteInSector+take])
		n += int(take)
		s.rd += take
	}
	return n, nil
}

// Write overwrites h's contents starting at its write cursor, advancing it
// by the number of bytes actually written. This engine never allocates new
// clusters: a write whose end would exceed the file's current size writes
// only up to size and returns WouldGrow alongside the count it managed.
// The root directory entry is updated once per call, after its last sector
// is written, when at least one byte was written; a call that fails partway
// returns without updating it.
func (f *Files) Write(h Handle, buf []byte) (int, error) {
	s, err := f.slot(h)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	n := len(buf)
	grows := false
	if uint64(s.wr)+uint64(len(buf)) > uint64(s.size) {
		n = int(s.size - s.wr)
		grows = true
	}

	written := 0
	for written < n {
		sector, byteInSector, err := f.sectorForOffset(s.firstCluster, s.wr)
		if err != nil {
			return written, err
		}
		data, err := f.vol.cache.Get(sector)
		if err != nil {
			return written, fmt.Errorf("fat32: write handle %d: %w", h, err)
		}
		take := block.SectorSize - byteInSector
		if want := uint32(n - written); want < take {
			take = want
		}
		copy(data[byteInSector:byteInSector+take], buf[written:])
		if err := f.vol.cache.Put(sector, data); err != nil {
			return written, fmt.Errorf("fat32: write handle %d: %w", h, err)
		}
		written += int(take)
		s.wr += take
	}

	if written > 0 {
		date, tim := toFATDateTime(time.Now())
		s.modDate, s.modTime = uint16(date), uint16(tim)
		if err := f.updateRootEntry(h); err != nil {
			return written, err
		}
	}
	if grows {
		f.log.Warn("write would grow file beyond its allocation", "handle", h, "requested", len(buf), "written", written)
		return written, WouldGrow
	}
	return written, nil
}

// updateRootEntry rewrites h's 32-byte root directory record in place,
// stamping the current file_size and last-modified date/time fields from
// handleSlot. file_size never actually changes under this engine's
// no-growth policy; the call still runs on every successful Write so the
// modification timestamp it just stamped into handleSlot reaches the
// medium.
func (f *Files) updateRootEntry(h Handle) error {
	s, err := f.slot(h)
	if err != nil {
		return err
	}
	const entriesPerSector = block.SectorSize / dirEntrySize
	entrySector := s.rootEntryIndex / entriesPerSector
	entryOff := (s.rootEntryIndex % entriesPerSector) * dirEntrySize

	cluster, consumed, err := f.vol.WalkChain(f.vol.geo.RootCluster, int(entrySector/uint32(f.vol.geo.SectorsPerCluster)))
	if err != nil {
		return err
	}
	if uint32(consumed) != entrySector/uint32(f.vol.geo.SectorsPerCluster) {
		return ChainTruncated
	}
	sectorInCluster := entrySector % uint32(f.vol.geo.SectorsPerCluster)
	sector := f.vol.ClusterToSector(cluster) + sectorInCluster

	data, err := f.vol.cache.Get(sector)
	if err != nil {
		return fmt.Errorf("fat32: update root entry for handle %d: %w", h, err)
	}
	d := dirEntry{data: data[entryOff : entryOff+dirEntrySize]}
	d.setFileSize(s.size)
	d.setModTime(s.modDate, s.modTime)
	return f.vol.cache.Put(sector, data)
}

// SeekRead repositions h's read cursor, clamped to [0, size].
func (f *Files) SeekRead(h Handle, pos uint32) (uint32, error) {
	s, err := f.slot(h)
	if err != nil {
		return 0, err
	}
	if pos > s.size {
		pos = s.size
	}
	s.rd = pos
	return s.rd, nil
}

// SeekWrite repositions h's write cursor. Positions beyond size are
// rejected rather than clamped: this engine does not allocate clusters, so
// a write cursor beyond the current allocation could never be honored.
func (f *Files) SeekWrite(h Handle, pos uint32) (uint32, error) {
	s, err := f.slot(h)
	if err != nil {
		return 0, err
	}
	if pos > s.size {
		return 0, BadArgument
	}
	s.wr = pos
	return s.wr, nil
}

// Close releases h's slot. The sector cache is write-through, so there is
// nothing left to flush on close.
func (f *Files) Close(h Handle) error {
	s, err := f.slot(h)
	if err != nil {
		return err
	}
	*s = handleSlot{}
	return nil
}
