package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/datasync-go/internal/ledger"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent uploads and submissions made from this machine",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntP("limit", "n", ledger.DefaultLimit, "entries per section")
	cmd.Flags().Bool("uploads", false, "show only uploads")
	cmd.Flags().Bool("submissions", false, "show only submissions")
	cmd.MarkFlagsMutuallyExclusive("uploads", "submissions")

	return cmd
}

// historyOutput is the JSON schema for `history --json`.
type historyOutput struct {
	Uploads     []historyUpload     `json:"uploads,omitempty"`
	Submissions []historySubmission `json:"submissions,omitempty"`
}

type historyUpload struct {
	Target     string `json:"target"`
	FileName   string `json:"file_name"`
	SHA256     string `json:"sha256,omitempty"`
	Size       int64  `json:"size"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finished_at"`
}

type historySubmission struct {
	SubmittedBy      string  `json:"submitted_by"`
	CompanyName      string  `json:"company_name"`
	NumberOfUsers    int     `json:"number_of_users"`
	NumberOfProducts int     `json:"number_of_products"`
	Percentage       float64 `json:"percentage"`
	CreatedAt        string  `json:"created_at"`
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	limit, _ := cmd.Flags().GetInt("limit")
	onlyUploads, _ := cmd.Flags().GetBool("uploads")
	onlySubs, _ := cmd.Flags().GetBool("submissions")

	store, err := openLedger(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		uploads []ledger.Upload
		subs    []ledger.Submission
	)

	if !onlySubs {
		if uploads, err = store.RecentUploads(ctx, limit); err != nil {
			return err
		}
	}

	if !onlyUploads {
		if subs, err = store.RecentSubmissions(ctx, limit); err != nil {
			return err
		}
	}

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, toHistoryOutput(uploads, subs))
	}

	if !onlySubs {
		printUploadHistory(cc, uploads)
	}

	if !onlyUploads {
		if !onlySubs {
			fmt.Fprintln(cc.Stdout)
		}

		printSubmissionHistory(cc, subs)
	}

	return nil
}

func printUploadHistory(cc *CLIContext, uploads []ledger.Upload) {
	fmt.Fprintln(cc.Stdout, "Uploads:")

	if len(uploads) == 0 {
		fmt.Fprintln(cc.Stdout, "  none")
		return
	}

	rows := make([][]string, 0, len(uploads))

	for _, u := range uploads {
		status := u.Status
		if u.Error != "" {
			status += ": " + u.Error
		}

		rows = append(rows, []string{formatTime(u.FinishedAt), u.FileName, formatSize(u.Size), u.Target, status})
	}

	printTable(cc.Stdout, []string{"WHEN", "FILE", "SIZE", "TARGET", "STATUS"}, rows)
}

func printSubmissionHistory(cc *CLIContext, subs []ledger.Submission) {
	fmt.Fprintln(cc.Stdout, "Submissions:")

	if len(subs) == 0 {
		fmt.Fprintln(cc.Stdout, "  none")
		return
	}

	rows := make([][]string, 0, len(subs))

	for _, s := range subs {
		rows = append(rows, []string{
			formatTime(s.CreatedAt), s.CompanyName,
			fmt.Sprint(s.NumberOfUsers), fmt.Sprint(s.NumberOfProducts), formatPercent(s.Percentage),
		})
	}

	printTable(cc.Stdout, []string{"WHEN", "COMPANY", "USERS", "PRODUCTS", "PERCENT"}, rows)
}

func toHistoryOutput(uploads []ledger.Upload, subs []ledger.Submission) historyOutput {
	var out historyOutput

	for _, u := range uploads {
		out.Uploads = append(out.Uploads, historyUpload{
			Target: u.Target, FileName: u.FileName, SHA256: u.SHA256, Size: u.Size,
			Status: u.Status, Error: u.Error, FinishedAt: u.FinishedAt.UTC().Format(time.RFC3339),
		})
	}

	for _, s := range subs {
		out.Submissions = append(out.Submissions, historySubmission{
			SubmittedBy: s.SubmittedBy, CompanyName: s.CompanyName,
			NumberOfUsers: s.NumberOfUsers, NumberOfProducts: s.NumberOfProducts,
			Percentage: s.Percentage, CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return out
}
