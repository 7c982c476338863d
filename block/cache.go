package block

import "fmt"

// noSector is the sentinel cache key meaning "slot holds nothing".
const noSector uint32 = 1<<32 - 1

// Cache is a single 512-byte read-through, write-through slot keyed by
// absolute sector number, modeled on the teacher's one-window disk access
// buffer (FS.win / FS.winsect in the upstream FatFs port). Sequential reads
// within one sector and repeated FAT-entry lookups in the same FAT sector
// become free; the slot is write-through, so a crash between logical
// operations never leaves the medium depending on cache-only state.
//
// Cache is not safe for concurrent use — this module targets a
// single-threaded cooperative host, see the concurrency model in
// SPEC_FULL.md §5.
type Cache struct {
	dev    Device
	sector uint32
	data   [SectorSize]byte
	dirty  bool
}

// NewCache wraps dev with a one-sector cache.
func NewCache(dev Device) *Cache {
	c := &Cache{dev: dev}
	c.sector = noSector
	return c
}

// Device returns the underlying device the cache reads through to.
func (c *Cache) Device() Device { return c.dev }

// Get returns the 512-byte contents of sector, reading the medium only if
// the slot does not already hold that sector. The returned slice aliases
// the cache's internal buffer and is only valid until the next Get/Put call.
func (c *Cache) Get(sector uint32) ([]byte, error) {
	if c.sector == sector {
		return c.data[:], nil
	}
	if err := c.Flush(); err != nil {
		return nil, err
	}
	if err := c.dev.ReadSectors(c.data[:], sector, 1); err != nil {
		return nil, fmt.Errorf("block: read sector %d: %w", sector, err)
	}
	c.sector = sector
	return c.data[:], nil
}

// Put writes data (which must be SectorSize bytes) through to sector on the
// medium and updates the slot to hold it, so a subsequent Get for the same
// sector is free. A dirty slot keyed to a different sector is flushed first.
func (c *Cache) Put(sector uint32, data []byte) error {
	if len(data) != SectorSize {
		return fmt.Errorf("block: put: data must be %d bytes, got %d", SectorSize, len(data))
	}
	if sector != c.sector {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	if err := c.dev.WriteSectors(data, sector, 1); err != nil {
		return fmt.Errorf("block: write sector %d: %w", sector, err)
	}
	copy(c.data[:], data)
	c.sector = sector
	c.dirty = false
	return nil
}

// MarkDirty flags the currently keyed sector as modified in place (the
// caller wrote directly into the slice returned by Get). The mutation is
// not visible on the medium until Flush is called.
func (c *Cache) MarkDirty() {
	c.dirty = true
}

// Flush writes the keyed sector back to the medium if it was marked dirty
// since the last Get/Put/Flush. Callers that cross a sector boundary must
// Flush before fetching the next sector — Get does this automatically.
func (c *Cache) Flush() error {
	if !c.dirty || c.sector == noSector {
		return nil
	}
	if err := c.dev.WriteSectors(c.data[:], c.sector, 1); err != nil {
		return fmt.Errorf("block: flush sector %d: %w", c.sector, err)
	}
	c.dirty = false
	return nil
}

// Invalidate discards the slot's key without flushing, forcing the next Get
// to refetch from the medium regardless of which sector it targets.
func (c *Cache) Invalidate() {
	c.sector = noSector
	c.dirty = false
}
