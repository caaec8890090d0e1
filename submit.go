package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/datasync-go/internal/dashboard"
	"github.com/tonimelisma/datasync-go/internal/identity"
	"github.com/tonimelisma/datasync-go/internal/ledger"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit company data (userA)",
		Long: `Submit a company's user and product counts. The percentage of users per
product is computed locally and stored with the submission.`,
		Args: cobra.NoArgs,
		RunE: runSubmit,
	}

	cmd.Flags().String("company", "", "company name")
	cmd.Flags().Int("users", 0, "number of users (at least 1)")
	cmd.Flags().Int("products", 0, "number of products (at least 1)")

	return cmd
}

// submitOutput is the JSON schema for `submit --json`.
type submitOutput struct {
	CompanyName      string          `json:"companyName"`
	NumberOfUsers    int             `json:"numberOfUsers"`
	NumberOfProducts int             `json:"numberOfProducts"`
	Percentage       float64         `json:"percentage"`
	Response         json.RawMessage `json:"response,omitempty"`
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	company, _ := cmd.Flags().GetString("company")
	company = strings.TrimSpace(company)
	users, _ := cmd.Flags().GetInt("users")
	products, _ := cmd.Flags().GetInt("products")

	in := dashboard.SubmissionInput{CompanyName: company, NumberOfUsers: users, NumberOfProducts: products}
	if err := in.Validate(); err != nil {
		return err
	}

	app, err := openAppSession(ctx, cc, identity.RoleUserA)
	if err != nil {
		return err
	}

	resp, err := app.Service.Submit(ctx, in)
	if err != nil {
		return err
	}

	out := submitOutput{
		CompanyName:      company,
		NumberOfUsers:    users,
		NumberOfProducts: products,
		Percentage:       dashboard.Percentage(users, products),
		Response:         resp,
	}

	recordSubmission(cmd, cc, app.User.Email(), out)

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, out)
	}

	fmt.Fprintf(cc.Stdout, "Submitted %s: %d users, %d products, %s\n",
		company, users, products, formatPercent(out.Percentage))

	return nil
}

// recordSubmission stores a submitted form in the local history. Failures
// are logged; the submission itself already succeeded.
func recordSubmission(cmd *cobra.Command, cc *CLIContext, email string, out submitOutput) {
	ctx := cmd.Context()

	store, err := openLedger(ctx, cc)
	if err != nil {
		cc.Logger.Warn("history unavailable", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	if _, err := store.RecordSubmission(ctx, ledger.Submission{
		SubmittedBy:      email,
		CompanyName:      out.CompanyName,
		NumberOfUsers:    out.NumberOfUsers,
		NumberOfProducts: out.NumberOfProducts,
		Percentage:       out.Percentage,
		Response:         string(out.Response),
	}); err != nil {
		cc.Logger.Warn("recording submission failed", slog.String("error", err.Error()))
	}
}
