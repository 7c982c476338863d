package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/embeddedgo/sdfat/block"
	"github.com/spf13/cobra"
)

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Mount a disk image and print its FAT32 geometry",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
}

func runInfo(cmd *cobra.Command, args []string) error {
	dev, vol, err := mountImage(args[0], true)
	if err != nil {
		return err
	}
	defer dev.Close()

	geo := vol.Geometry()
	capacity := uint64(dev.Sectors()) * block.SectorSize

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "partition LBA:       %d\n", geo.PartitionLBA)
	fmt.Fprintf(out, "bytes per sector:    %d\n", geo.BytesPerSector)
	fmt.Fprintf(out, "sectors per cluster: %d\n", geo.SectorsPerCluster)
	fmt.Fprintf(out, "reserved sectors:    %d\n", geo.ReservedSectors)
	fmt.Fprintf(out, "number of FATs:      %d\n", geo.NumFATs)
	fmt.Fprintf(out, "sectors per FAT:     %d\n", geo.SectorsPerFAT32)
	fmt.Fprintf(out, "root cluster:        %d\n", geo.RootCluster)
	fmt.Fprintf(out, "FAT start sector:    %d\n", geo.FATStartSector)
	fmt.Fprintf(out, "data start sector:   %d\n", geo.DataStartSector)
	fmt.Fprintf(out, "image size:          %s\n", humanize.Bytes(capacity))
	return nil
}
