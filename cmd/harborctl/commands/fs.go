package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var lsRecursive bool

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a library directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := c.List(cmd.Context(), path, lsRecursive)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Kind == "dir" {
				fmt.Printf("%-12s %-20s %s/\n", "-", formatMtime(e.Mtime), e.Path)
			} else {
				fmt.Printf("%-12d %-20s %s\n", e.Size, formatMtime(e.Mtime), e.Path)
			}
		}
		return nil
	},
}

var manifestCmd = &cobra.Command{
	Use:   "manifest [path]",
	Short: "List a library subtree with per-file digests",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := c.Manifest(cmd.Context(), path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Kind == "file" {
				fmt.Printf("%s  %12d  %s\n", e.Digest, e.Size, e.Path)
			}
		}
		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show size, digest, and mtime of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		stat, err := c.Stat(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("path:   %s\n", args[0])
		fmt.Printf("size:   %d\n", stat.Size)
		fmt.Printf("digest: %s\n", stat.Digest)
		fmt.Printf("mtime:  %s\n", formatMtime(stat.Mtime))
		return nil
	},
}

var checksumCmd = &cobra.Command{
	Use:   "checksum <path>",
	Short: "Print the SHA-256 digest of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		digest, err := c.Checksum(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s  %s\n", digest, args[0])
		return nil
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists <path>",
	Short: "Check whether a path exists (exit 0 when it does)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		exists, err := c.Exists(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s does not exist", args[0])
		}
		fmt.Println(args[0])
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Delete(cmd.Context(), args[0])
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <from> <to>",
	Short: "Rename a file within the library",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Rename(cmd.Context(), args[0], args[1])
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory (with parents)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Mkdir(cmd.Context(), args[0])
	},
}

var rmdirRecursive bool

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <path>",
	Short: "Remove a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Rmdir(cmd.Context(), args[0], rmdirRecursive)
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity and authentication",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		start := time.Now()
		if err := c.Ping(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("session %s  rtt %s\n", c.SessionID(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "list recursively")
	rmdirCmd.Flags().BoolVarP(&rmdirRecursive, "recursive", "r", false, "remove contents recursively")
}

func formatMtime(unix int64) string {
	return time.Unix(unix, 0).Format("2006-01-02 15:04:05")
}
