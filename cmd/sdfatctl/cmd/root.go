// Package cmd implements the sdfatctl command tree: info/cat/put operating
// on a FAT32 disk-image file through filedisk.Device.
package cmd

import (
	"github.com/spf13/cobra"
)

const appName = "sdfatctl"

// Execute builds and runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:   appName,
		Short: appName + " - inspect and edit a FAT32 disk image",
	}

	root.AddCommand(newInfoCommand())
	root.AddCommand(newCatCommand())
	root.AddCommand(newPutCommand())

	return root.Execute()
}
