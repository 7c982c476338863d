package fat32

// Error is a closed set of FS-layer fault kinds, grounded on the teacher's
// fileResult typed-error pattern in fat.go. Transport faults that surface
// from block.Device are wrapped with fmt.Errorf("%w", ...) rather than
// re-interpreted as one of these kinds, so errors.Is against block.ErrIO
// keeps working across the boundary.
type Error int

const (
	// Io covers a medium transfer failure not otherwise classified.
	Io Error = iota + 1
	// CardTimeout names a bounded wait that expired below block.Device.
	// fat32 never returns this value: such a failure reaches the caller as
	// the device's own error, wrapped.
	CardTimeout
	// CardRejected names a card-level command rejection below
	// block.Device; like CardTimeout, fat32 never returns this value.
	CardRejected
	// BadSignature means the MBR or VBR 0xAA55 signature was missing.
	BadSignature
	// UnsupportedPartition means no MBR entry with a FAT32 partition type
	// was found.
	UnsupportedPartition
	// UnsupportedSectorSize means the VBR reports a sector size other than
	// block.SectorSize.
	UnsupportedSectorSize
	// NotFound means open scanned the whole root chain without a match.
	NotFound
	// TooManyOpen means every handle slot is occupied.
	TooManyOpen
	// InvalidHandle means the caller passed a handle index that is out of
	// range or not currently open.
	InvalidHandle
	// Eof is a normal terminal result for Read, not a fault: it means the
	// read cursor was already at size on entry.
	Eof
	// WouldGrow means a write's end offset exceeds the file's current size;
	// this engine never allocates new clusters.
	WouldGrow
	// ChainTruncated means a cluster walk hit end-of-chain before reaching
	// the requested hop count.
	ChainTruncated
	// BadArgument covers preconditions rejected without touching the
	// medium: a write-cursor seek beyond size, or a malformed name.
	BadArgument
)

var errorText = map[Error]string{
	Io:                    "fat32: medium I/O error",
	CardTimeout:           "fat32: card timeout",
	CardRejected:          "fat32: card rejected command",
	BadSignature:          "fat32: bad boot signature",
	UnsupportedPartition:  "fat32: no FAT32 partition found",
	UnsupportedSectorSize: "fat32: unsupported sector size",
	NotFound:              "fat32: file not found",
	TooManyOpen:           "fat32: too many open handles",
	InvalidHandle:         "fat32: invalid handle",
	Eof:                   "fat32: end of file",
	WouldGrow:             "fat32: write would grow file beyond its allocation",
	ChainTruncated:        "fat32: cluster chain truncated",
	BadArgument:           "fat32: bad argument",
}

func (e Error) Error() string {
	if s, ok := errorText[e]; ok {
		return s
	}
	return "fat32: unknown error"
}
