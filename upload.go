package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/datasync-go/internal/dropzone"
	"github.com/tonimelisma/datasync-go/internal/identity"
	"github.com/tonimelisma/datasync-go/internal/ledger"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload images to your partner's dashboard (userB)",
		Long: `Upload one or more images to the partner's dashboard. Files whose content was
already uploaded are skipped unless --force is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runUpload,
	}

	cmd.Flags().Bool("force", false, "upload even if the same content was uploaded before")
	cmd.Flags().Int("parallel", 0, "concurrent uploads (default from uploads.parallel)")

	return cmd
}

// uploadFileOutput is one entry of `upload --json`.
type uploadFileOutput struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
	Response string `json:"response,omitempty"`
}

// uploadTarget bundles what upload and watch share.
type uploadTarget struct {
	uploader *dropzone.Uploader
	store    *ledger.Store
}

func (t *uploadTarget) Close() {
	if t.store != nil {
		_ = t.store.Close()
	}
}

// newUploadTarget signs in as userB, opens the history and builds an
// Uploader aimed at the partner's collection.
func newUploadTarget(ctx context.Context, cmd *cobra.Command, cc *CLIContext, force bool) (*uploadTarget, error) {
	app, err := openAppSession(ctx, cc, identity.RoleUserB)
	if err != nil {
		return nil, err
	}

	partner, err := partnerUID(cc)
	if err != nil {
		return nil, err
	}

	parallel := cc.Cfg.Uploads.Parallel
	if n, _ := cmd.Flags().GetInt("parallel"); n > 0 {
		parallel = n
	}

	renderer := &uploadRenderer{
		w:     cc.Stderr,
		tty:   isTerminal(cc.Stderr),
		quiet: cc.Flags.Quiet || cc.Flags.JSON,
	}

	opts := []dropzone.Option{
		dropzone.WithParallel(parallel),
		dropzone.WithStatusFunc(renderer.update),
	}

	t := &uploadTarget{}

	store, err := openLedger(ctx, cc)
	if err != nil {
		// Uploads still work without history; only duplicate skipping is lost.
		cc.Logger.Warn("history unavailable", slog.String("error", err.Error()))
	} else {
		t.store = store
		opts = append(opts,
			dropzone.WithHistory(store),
			dropzone.WithSkipDuplicates(cc.Cfg.Uploads.SkipDuplicates && !force),
		)
	}

	t.uploader = dropzone.NewUploader(app.Service, partner, cc.Logger, opts...)

	return t, nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
	defer stop()
	force, _ := cmd.Flags().GetBool("force")

	target, err := newUploadTarget(ctx, cmd, cc, force)
	if err != nil {
		return err
	}
	defer target.Close()

	report, err := target.uploader.UploadAll(ctx, args)
	if report == nil {
		return err
	}

	if cc.Flags.JSON {
		if jerr := printJSON(cc.Stdout, uploadOutputs(report)); jerr != nil {
			return jerr
		}
	} else {
		cc.Statusf("%d uploaded, %d skipped, %d failed\n", report.Succeeded, report.Skipped, report.Failed)
	}

	if err != nil {
		return err
	}

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", report.Failed, len(report.Files))
	}

	return nil
}

func uploadOutputs(report *dropzone.Report) []uploadFileOutput {
	out := make([]uploadFileOutput, 0, len(report.Files))

	for _, f := range report.Files {
		o := uploadFileOutput{Path: f.Path, Name: f.Name, State: string(f.State), Response: f.Response}
		if f.Err != nil {
			o.Error = f.Err.Error()
		}

		out = append(out, o)
	}

	return out
}
