package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/datasync-go/internal/dashboard"
	"github.com/tonimelisma/datasync-go/internal/identity"
)

func newImagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "List images uploaded to your dashboard (userA)",
		Args:  cobra.NoArgs,
		RunE:  runImages,
	}

	cmd.Flags().BoolP("follow", "f", false, "keep refreshing and print new images as they arrive")

	return cmd
}

func runImages(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	follow, _ := cmd.Flags().GetBool("follow")

	ctx := cmd.Context()
	if follow {
		var stop context.CancelFunc

		ctx, stop = shutdownContext(ctx, cc.Logger)
		defer stop()
	}

	app, err := openAppSession(ctx, cc, identity.RoleUserA)
	if err != nil {
		return err
	}

	uid := app.User.UID()
	fetch := func(ctx context.Context) ([]dashboard.Image, error) {
		return app.Service.ListImages(ctx, uid)
	}

	if !follow {
		images, err := fetch(ctx)
		if err != nil {
			return err
		}

		return printImages(cc, images)
	}

	seen := make(map[string]bool)
	first := true

	return dashboard.Poll(ctx, cc.Cfg.PollInterval, cc.Logger, fetch, func(images []dashboard.Image) {
		if cc.Flags.JSON {
			_ = printJSON(cc.Stdout, images)
			return
		}

		var fresh []dashboard.Image

		for _, img := range images {
			if !seen[img.ID] {
				seen[img.ID] = true
				fresh = append(fresh, img)
			}
		}

		if first {
			first = false
			_ = printImages(cc, fresh)

			return
		}

		for _, img := range fresh {
			fmt.Fprintf(cc.Stdout, "new image: %s  %s\n", img.Filename, img.URL)
		}
	})
}

func printImages(cc *CLIContext, images []dashboard.Image) error {
	if cc.Flags.JSON {
		if images == nil {
			images = []dashboard.Image{}
		}

		return printJSON(cc.Stdout, images)
	}

	if len(images) == 0 {
		fmt.Fprintln(cc.Stdout, "No images uploaded yet.")
		return nil
	}

	writeImageTable(cc.Stdout, images)

	return nil
}

func writeImageTable(w io.Writer, images []dashboard.Image) {
	rows := make([][]string, 0, len(images))
	for _, img := range images {
		rows = append(rows, []string{img.Filename, formatTime(img.CreatedAt.Time), img.URL})
	}

	printTable(w, []string{"FILENAME", "UPLOADED", "URL"}, rows)
}
