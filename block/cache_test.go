package block

import (
	"context"
	"testing"
)

// memDevice is a minimal in-memory Device used only to exercise Cache —
// the ramdisk package provides the shipped, spec-mandated equivalent.
type memDevice struct {
	sectors map[uint32][SectorSize]byte
	reads   int
	writes  int
}

func newMemDevice() *memDevice {
	return &memDevice{sectors: make(map[uint32][SectorSize]byte)}
}

func (m *memDevice) Init(ctx context.Context) error { return nil }

func (m *memDevice) ReadSectors(dst []byte, sector uint32, count int) error {
	for i := 0; i < count; i++ {
		m.reads++
		s := m.sectors[sector+uint32(i)]
		copy(dst[i*SectorSize:(i+1)*SectorSize], s[:])
	}
	return nil
}

func (m *memDevice) WriteSectors(src []byte, sector uint32, count int) error {
	for i := 0; i < count; i++ {
		m.writes++
		var s [SectorSize]byte
		copy(s[:], src[i*SectorSize:(i+1)*SectorSize])
		m.sectors[sector+uint32(i)] = s
	}
	return nil
}

func TestCacheGetRefetchesOnlyOnMismatch(t *testing.T) {
	dev := newMemDevice()
	var want [SectorSize]byte
	want[0] = 0xAB
	dev.sectors[7] = want

	c := NewCache(dev)
	for i := 0; i < 3; i++ {
		got, err := c.Get(7)
		if err != nil {
			t.Fatal(err)
		}
		if got[0] != 0xAB {
			t.Fatalf("got[0] = %#x, want 0xAB", got[0])
		}
	}
	if dev.reads != 1 {
		t.Fatalf("expected a single medium read for repeated Get(7), got %d", dev.reads)
	}

	if _, err := c.Get(8); err != nil {
		t.Fatal(err)
	}
	if dev.reads != 2 {
		t.Fatalf("expected a second medium read for Get(8), got %d", dev.reads)
	}
}

func TestCachePutWritesThrough(t *testing.T) {
	dev := newMemDevice()
	c := NewCache(dev)
	var data [SectorSize]byte
	data[10] = 0x42
	if err := c.Put(3, data[:]); err != nil {
		t.Fatal(err)
	}
	if dev.writes != 1 {
		t.Fatalf("expected one write-through, got %d", dev.writes)
	}
	if dev.sectors[3][10] != 0x42 {
		t.Fatal("write-through did not reach the medium")
	}
	got, err := c.Get(3)
	if err != nil {
		t.Fatal(err)
	}
	if got[10] != 0x42 || dev.reads != 0 {
		t.Fatal("Get after Put should be served from the slot, not the medium")
	}
}

func TestCacheFlushOnBoundaryCross(t *testing.T) {
	dev := newMemDevice()
	c := NewCache(dev)
	buf, err := c.Get(1)
	if err != nil {
		t.Fatal(err)
	}
	buf[0] = 0x99
	c.MarkDirty()

	if dev.sectors[1][0] == 0x99 {
		t.Fatal("dirty mutation reached the medium before Flush/boundary-cross")
	}

	if _, err := c.Get(2); err != nil {
		t.Fatal(err)
	}
	if dev.sectors[1][0] != 0x99 {
		t.Fatal("crossing a sector boundary must flush the previous dirty slot")
	}
}

func TestCacheInvalidate(t *testing.T) {
	dev := newMemDevice()
	c := NewCache(dev)
	if _, err := c.Get(5); err != nil {
		t.Fatal(err)
	}
	c.Invalidate()
	if _, err := c.Get(5); err != nil {
		t.Fatal(err)
	}
	if dev.reads != 2 {
		t.Fatalf("Invalidate must force a refetch, got %d reads", dev.reads)
	}
}
