package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeffvan302/fileharbor/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configExampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print a starter configuration file",
	Long: `Print a starter server configuration document to stdout.

Redirect it into a file and edit the certificate paths and library roots:
  fileharbor config example > /etc/fileharbor/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		example, err := config.Example()
		if err != nil {
			return err
		}
		fmt.Print(example)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configExampleCmd)
}
