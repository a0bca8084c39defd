package main

import (
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the connected device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		return s.client.Reset()
	},
}

var resetCountersCmd = &cobra.Command{
	Use:   "reset-counters",
	Short: "Reset the DFU transfer counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		return s.client.ResetCounters()
	},
}

var exploitCmd = &cobra.Command{
	Use:   "exploit",
	Short: "Trigger the USB exploit control request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		return s.client.SendExploit()
	},
}
