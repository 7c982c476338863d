package cmd

import (
	"context"
	"fmt"

	"github.com/embeddedgo/sdfat/fat32"
	"github.com/embeddedgo/sdfat/filedisk"
)

// mountImage opens the image file and mounts it, handing back both the
// volume and the underlying device so the caller can Close it when done.
func mountImage(path string, readOnly bool) (*filedisk.Device, *fat32.Volume, error) {
	dev, err := filedisk.Open(path, readOnly)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	vol := fat32.NewVolume(dev, nil)
	if err := vol.Mount(context.Background()); err != nil {
		dev.Close()
		return nil, nil, fmt.Errorf("mount %s: %w", path, err)
	}
	return dev, vol, nil
}
