package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/datasync-go/internal/dropzone"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Upload images dropped into a folder (userB)",
		Long: `Watch a folder and upload every accepted image that appears in it to the
partner's dashboard. A file is uploaded once it has stopped changing for the
settle delay. Press Ctrl-C to stop; a second Ctrl-C exits immediately.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	cmd.Flags().Bool("existing", false, "also upload images already in the folder")
	cmd.Flags().Bool("force", false, "upload even if the same content was uploaded before")
	cmd.Flags().Int("parallel", 0, "concurrent uploads (default from uploads.parallel)")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()

	existing, _ := cmd.Flags().GetBool("existing")
	force, _ := cmd.Flags().GetBool("force")

	target, err := newUploadTarget(ctx, cmd, cc, force)
	if err != nil {
		return err
	}
	defer target.Close()

	w := dropzone.NewWatcher(target.uploader, cc.Logger,
		dropzone.WithSettleDelay(cc.Cfg.SettleDelay),
		dropzone.WithScanExisting(existing),
		dropzone.WithBatchFunc(func(r *dropzone.Report) {
			if cc.Flags.JSON {
				_ = printJSON(cc.Stdout, uploadOutputs(r))
			}
		}),
	)

	cc.Statusf("Watching %s for images (Ctrl-C to stop)\n", args[0])

	if err := w.Run(ctx, args[0]); err != nil {
		return err
	}

	cc.Statusf("Stopped watching.\n")

	return nil
}
