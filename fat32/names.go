package fat32

import (
	"encoding/binary"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// encode83 renders name as the 11-byte padded 8.3 form: 8 bytes of base
// name, 3 bytes of extension, space-padded, uppercased, encoded through
// code page 437 the way the on-medium short name is defined to be. It
// replaces the teacher's never-wired codepage/exCvt fields in FS.
func encode83(name string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	base, ext, _ := strings.Cut(name, ".")
	base = strings.ToUpper(base)
	ext = strings.ToUpper(ext)
	if base == "" || len(base) > 8 || len(ext) > 3 {
		return out, BadArgument
	}
	enc := charmap.CodePage437.NewEncoder()
	baseBytes, err := enc.Bytes([]byte(base))
	if err != nil {
		return out, BadArgument
	}
	extBytes, err := enc.Bytes([]byte(ext))
	if err != nil {
		return out, BadArgument
	}
	copy(out[0:8], baseBytes)
	copy(out[8:11], extBytes)
	return out, nil
}

// decode83 renders an 11-byte raw short name back to a "BASE.EXT" (or
// "BASE") display string, trimming trailing space padding from each half
// and decoding through code page 437.
func decode83(raw [11]byte) string {
	dec := charmap.CodePage437.NewDecoder()
	base, _ := dec.Bytes(raw[0:8])
	ext, _ := dec.Bytes(raw[8:11])
	baseStr := strings.TrimRight(string(base), " ")
	extStr := strings.TrimRight(string(ext), " ")
	if extStr == "" {
		return baseStr
	}
	return baseStr + "." + extStr
}

// decodeLongName reassembles a long file name from the ordered set of LFN
// entries preceding a short entry, keyed by their on-disk sequence number
// (1-based; the entry nearest the short entry carries sequence 1, the
// entry farthest from it carries the highest sequence and the
// ldirLastEntryFlag bit). Entries not forming a contiguous 1..n run, an
// entry whose checksum doesn't match shortName, or a last-entry flag on
// the wrong entry are all rejected by returning ok=false, so callers fall
// back to the short name instead of trusting a corrupted or stale chain.
func decodeLongName(entries map[int]lfnEntry, shortName [11]byte) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}
	want := shortNameChecksum(shortName)
	n := len(entries)
	units := make([]uint16, 0, n*13)
	for seq := 1; seq <= n; seq++ {
		e, ok := entries[seq]
		if !ok || e.checksum() != want || e.isLast() != (seq == n) {
			return "", false
		}
		units = e.nameUnits(units)
	}
	// Trim the 0x0000 terminator and trailing 0xFFFF padding units.
	trimmed := len(units)
	for trimmed > 0 && (units[trimmed-1] == 0xFFFF || units[trimmed-1] == 0x0000) {
		trimmed--
	}
	units = units[:trimmed]

	raw := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(raw[2*i:], u)
	}
	out, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(out), true
}
