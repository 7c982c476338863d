//go:build !unix

package filedisk

import "os"

// lockFile is a no-op on non-Unix targets: golang.org/x/sys/unix isn't
// available there, and this module has no Windows-native locking path.
func lockFile(f *os.File) error { return nil }
