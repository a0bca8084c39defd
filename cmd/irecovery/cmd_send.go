package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sendRet bool

var sendCmd = &cobra.Command{
	Use:   "send [command...]",
	Short: "Run an iBoot console command and print its output",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		s.printReceived()

		command := strings.Join(args, " ")
		if err := s.client.SendCommand(command); err != nil {
			return err
		}
		if err := s.client.Receive(); err != nil {
			return err
		}
		if sendRet {
			ret, err := s.client.Getret()
			if err != nil {
				return err
			}
			fmt.Printf("ret = 0x%08x\n", ret)
		}
		return nil
	},
}

var getenvCmd = &cobra.Command{
	Use:   "getenv [variable]",
	Short: "Read an environment variable from the device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		value, err := s.client.Getenv(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var setenvCmd = &cobra.Command{
	Use:   "setenv [variable] [value]",
	Short: "Set an environment variable on the device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		return s.client.Setenv(args[0], args[1])
	},
}

var saveenvCmd = &cobra.Command{
	Use:   "saveenv",
	Short: "Persist the device environment to NOR",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()
		return s.client.Saveenv()
	},
}
