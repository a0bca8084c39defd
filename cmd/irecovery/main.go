package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chronicdev/go-irecovery/pkg/conf"
)

var rootCmd = &cobra.Command{
	Use:   "irecovery",
	Short: "irecovery talks to Apple devices in DFU, WTF or Recovery mode",
	Long: `Drives iBoot-class devices over USB: runs console commands, reads and
writes environment variables, and uploads/downloads firmware images with
the mode-appropriate transfer engine.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	verboseLog bool
	openTries  int
	configPath string
)

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().IntVarP(&openTries, "attempts", "a", 1, "Open attempts before giving up (1 second apart)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file (default: XDG irecovery/irecovery.conf)")
	infoCmd.Flags().BoolVar(&infoPlist, "plist", false, "Emit identity as an XML property list")
	sendCmd.Flags().BoolVar(&sendRet, "ret", false, "Read back the command's return value")
	uploadCmd.Flags().BoolVarP(&uploadFinish, "finish", "f", false, "Notify the device when the DFU transfer is done and reset it")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(getenvCmd)
	rootCmd.AddCommand(setenvCmd)
	rootCmd.AddCommand(saveenvCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(scriptCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(resetCountersCmd)
	rootCmd.AddCommand(exploitCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
}

// setup applies the optional configuration file, then the log level.
// Flags set on the command line win over configured defaults.
func setup(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		if found, err := xdg.SearchConfigFile("irecovery/irecovery.conf"); err == nil {
			path = found
		}
	}
	if path != "" {
		cf, err := conf.Load(path)
		if err != nil {
			return err
		}
		if !cmd.Flags().Changed("verbose") {
			verboseLog = cf.String("verbose", "false") == "true"
		}
		if !cmd.Flags().Changed("attempts") {
			if n, err := strconv.Atoi(cf.String("attempts", "1")); err == nil && n > 0 {
				openTries = n
			}
		}
	}

	if verboseLog {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}
	return nil
}

func parseNumber(s string) (uint32, error) {
	var err error
	var res uint64
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		res, err = strconv.ParseUint(s[2:], 16, 32)
	} else {
		res, err = strconv.ParseUint(s, 10, 32)
	}
	if err != nil {
		return 0, err
	}
	return uint32(res), nil
}
