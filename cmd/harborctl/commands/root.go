// Package commands implements the harborctl CLI: the client surface of
// the FileHarbor protocol.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jeffvan302/fileharbor/pkg/client"
	"github.com/jeffvan302/fileharbor/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "harborctl",
	Short: "harborctl - FileHarbor client",
	Long: `harborctl transfers and manages files in a FileHarbor library.

It authenticates with the client certificate from the configuration file
and binds to the configured library. Uploads and downloads are chunked,
integrity-verified, and resume automatically after interruptions.

Use "harborctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "harborctl.yaml", "client configuration file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(checksumCmd)
	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(rmdirCmd)
	rootCmd.AddCommand(pingCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// newClient loads the configuration and builds the transfer engine.
func newClient() (*client.Client, error) {
	cfg, err := config.LoadTransfer(cfgFile)
	if err != nil {
		return nil, err
	}
	return client.New(cfg)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	PrintErr(format, args...)
	os.Exit(1)
}
