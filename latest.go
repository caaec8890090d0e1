package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/datasync-go/internal/dashboard"
	"github.com/tonimelisma/datasync-go/internal/identity"
)

func newLatestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Show your partner's latest submission (userB)",
		Args:  cobra.NoArgs,
		RunE:  runLatest,
	}

	cmd.Flags().BoolP("follow", "f", false, "keep refreshing and print each new submission")

	return cmd
}

func runLatest(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	follow, _ := cmd.Flags().GetBool("follow")

	ctx := cmd.Context()
	if follow {
		var stop context.CancelFunc

		ctx, stop = shutdownContext(ctx, cc.Logger)
		defer stop()
	}

	app, err := openAppSession(ctx, cc, identity.RoleUserB)
	if err != nil {
		return err
	}

	partner, err := partnerUID(cc)
	if err != nil {
		return err
	}

	fetch := func(ctx context.Context) (*dashboard.Submission, error) {
		return app.Service.LatestSubmission(ctx, partner)
	}

	if !follow {
		sub, err := fetch(ctx)
		if err != nil {
			return err
		}

		return printSubmission(cc, sub)
	}

	var lastKey string

	return dashboard.Poll(ctx, cc.Cfg.PollInterval, cc.Logger, fetch, func(sub *dashboard.Submission) {
		key := submissionKey(sub)
		if key == lastKey {
			return
		}

		lastKey = key
		_ = printSubmission(cc, sub)
	})
}

// submissionKey identifies a submission so unchanged polls print nothing.
func submissionKey(sub *dashboard.Submission) string {
	if sub == nil {
		return "none"
	}

	return sub.ID + "@" + sub.CreatedAt.String()
}

func printSubmission(cc *CLIContext, sub *dashboard.Submission) error {
	if cc.Flags.JSON {
		return printJSON(cc.Stdout, sub)
	}

	if sub == nil {
		fmt.Fprintln(cc.Stdout, "No submissions yet.")
		return nil
	}

	fmt.Fprintf(cc.Stdout, "Company:    %s\n", sub.CompanyName)
	fmt.Fprintf(cc.Stdout, "Users:      %d\n", sub.NumberOfUsers)
	fmt.Fprintf(cc.Stdout, "Products:   %d\n", sub.NumberOfProducts)
	fmt.Fprintf(cc.Stdout, "Percentage: %s\n", formatPercent(sub.Percentage))
	fmt.Fprintf(cc.Stdout, "Submitted:  %s\n", formatTime(sub.CreatedAt.Time))

	return nil
}
