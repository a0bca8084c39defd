package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"howett.net/plist"
)

var infoPlist bool

type deviceIdentity struct {
	Mode   string `plist:"Mode"`
	Serial string `plist:"SerialNumber"`
	CPID   string `plist:"CPID"`
	BDID   string `plist:"BDID"`
	ECID   string `plist:"ECID"`
	Device string `plist:"Device"`
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the connected device's mode and identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		id := deviceIdentity{
			Mode:   s.client.Mode().String(),
			Serial: s.client.Serial(),
			CPID:   "unknown",
			BDID:   "unknown",
			ECID:   "unknown",
			Device: s.client.Device().Name,
		}
		if cpid, err := s.client.CPID(); err == nil {
			id.CPID = fmt.Sprintf("%d", cpid)
		}
		if bdid, err := s.client.BDID(); err == nil {
			id.BDID = fmt.Sprintf("%02X", bdid)
		}
		if ecid, err := s.client.ECID(); err == nil {
			id.ECID = fmt.Sprintf("%016X", ecid)
		}

		if infoPlist {
			enc := plist.NewEncoderForFormat(os.Stdout, plist.XMLFormat)
			enc.Indent("\t")
			return enc.Encode(id)
		}

		fmt.Printf("Mode:   %s\n", id.Mode)
		fmt.Printf("Serial: %s\n", id.Serial)
		fmt.Printf("CPID:   %s\n", id.CPID)
		fmt.Printf("BDID:   %s\n", id.BDID)
		fmt.Printf("ECID:   %s\n", id.ECID)
		fmt.Printf("Device: %s\n", id.Device)
		return nil
	},
}
