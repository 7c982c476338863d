package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/embeddedgo/sdfat/fat32"
	"github.com/spf13/cobra"
)

func newPutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "put <image> <8.3name> <offset>",
		Short: "Overwrite [offset, offset+len) of an existing file with bytes read from stdin",
		Args:  cobra.ExactArgs(3),
		RunE:  runPut,
	}
}

func runPut(cmd *cobra.Command, args []string) error {
	image, name := args[0], args[1]
	offset, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", args[2], err)
	}

	dev, vol, err := mountImage(image, false)
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

	if _, err := files.SeekWrite(h, uint32(offset)); err != nil {
		return fmt.Errorf("seek to offset %d: %w", offset, err)
	}

	in := cmd.InOrStdin()
	buf := make([]byte, 4096)
	total := 0
	for {
		n, rerr := in.Read(buf)
		if n > 0 {
			written, werr := files.Write(h, buf[:n])
			total += written
			if errors.Is(werr, fat32.WouldGrow) {
				fmt.Fprintf(cmd.ErrOrStderr(), "put: wrote %d bytes, stopped at end of allocation\n", total)
				return nil
			}
			if werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "put: wrote %d bytes\n", total)
	return nil
}
