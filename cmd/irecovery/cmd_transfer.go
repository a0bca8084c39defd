package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ulikunitz/xz"
)

var uploadFinish bool

var uploadCmd = &cobra.Command{
	Use:   "upload [image]",
	Short: "Upload a firmware image to the device",
	Long: `Uploads an image with the transfer engine for the device's mode: bulk
packets in Recovery mode, checksummed control packets in DFU/WTF mode.
Images ending in .xz are decompressed transparently before upload.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readImage(args[0])
		if err != nil {
			return err
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		slog.Debug("uploading image", "path", args[0], "bytes", len(data), "mode", s.client.Mode())
		return s.client.SendBuffer(data, uploadFinish)
	},
}

func readImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".xz") {
		r, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return io.ReadAll(r)
	}
	return data, nil
}

var downloadCmd = &cobra.Command{
	Use:   "download [length] [output path]",
	Short: "Download a buffer from the device into a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		length, err := parseNumber(args[0])
		if err != nil {
			return err
		}

		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		data, err := s.client.RecvBuffer(int(length))
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[1], data, 0600); err != nil {
			return err
		}
		slog.Info("wrote file", "path", args[1], "bytes", len(data))
		return nil
	},
}

var scriptCmd = &cobra.Command{
	Use:   "script [file]",
	Short: "Run a file of console commands, line by line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		s.printReceived()
		return s.client.ExecuteScript(args[0])
	},
}
