package cmd

import (
	"errors"

	"github.com/embeddedgo/sdfat/fat32"
	"github.com/spf13/cobra"
)

func newCatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <8.3name>",
		Short: "Read a file fully and write it to stdout",
		Args:  cobra.ExactArgs(2),
		RunE:  runCat,
	}
}

func runCat(cmd *cobra.Command, args []string) error {
	image, name := args[0], args[1]

	dev, vol, err := mountImage(image, true)
	if err != nil {
		return err
	}
	defer dev.Close()

	files := fat32.NewFiles(vol, nil)
	h, err := files.Open(name)
	if err != nil {
		return err
	}
	defer files.Close(h)

	out := cmd.OutOrStdout()
	buf := make([]byte, 4096)
	for {
		n, err := files.Read(h, buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, fat32.Eof) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
