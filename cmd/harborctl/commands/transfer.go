package commands

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/jeffvan302/fileharbor/pkg/client"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local> <remote>",
	Short: "Upload a local file to the library",
	Long: `Upload a local file to a library-relative remote path.

The transfer is chunked and integrity-verified; an interrupted upload
resumes from the bytes the server already holds.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		done := attachProgressBar(c)
		err = c.Upload(cmd.Context(), args[0], args[1])
		done()
		return err
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <remote> <local>",
	Short: "Download a file from the library",
	Long: `Download a library-relative remote path to a local file.

An existing local partial resumes where it left off; the finished file is
digest-verified before it replaces the partial.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer c.Close()

		done := attachProgressBar(c)
		err = c.Download(cmd.Context(), args[0], args[1])
		done()
		return err
	},
}

// attachProgressBar feeds the engine's progress events into an mpb bar on
// stderr. The returned func finalizes rendering.
func attachProgressBar(c *client.Client) func() {
	progress := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(60))

	var bar *mpb.Bar
	c.SetProgressFunc(func(p client.Progress) {
		if bar == nil {
			bar = progress.New(int64(p.TotalBytes),
				mpb.BarStyle(),
				mpb.PrependDecorators(
					decor.Name(p.Path+" "),
					decor.CountersKibiByte("% .1f / % .1f"),
				),
				mpb.AppendDecorators(
					decor.AverageSpeed(decor.SizeB1024(0), "% .1f"),
				),
			)
		}
		bar.SetCurrent(int64(p.BytesDone))
	})

	return func() {
		if bar != nil {
			bar.SetTotal(-1, true)
		}
		progress.Wait()
		c.SetProgressFunc(nil)
	}
}
