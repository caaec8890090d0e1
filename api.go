package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/datasync-go/internal/apiclient"
)

func newAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Send an authenticated request to the API",
		Long: `Send an authenticated JSON request to any API path and print the response.
The session's ID token is attached and refreshed once if the server answers 401.`,
	}

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		cmd.AddCommand(newAPIMethodCmd(method))
	}

	return cmd
}

func newAPIMethodCmd(method string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " <path>",
		Short: method + " a JSON resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPI(cmd, method, args[0])
		},
	}

	if method == http.MethodPost || method == http.MethodPut {
		cmd.Flags().StringP("data", "d", "", "JSON body, @file to read a file, or @- for stdin")
	}

	return cmd
}

func runAPI(cmd *cobra.Command, method, path string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	var body any

	if f := cmd.Flags().Lookup("data"); f != nil && f.Value.String() != "" {
		raw, err := readData(cmd.InOrStdin(), f.Value.String())
		if err != nil {
			return err
		}

		body = raw
	}

	app, err := openAppSession(ctx, cc)
	if err != nil {
		return err
	}

	var out any
	if err := app.Client.Do(ctx, apiclient.Request{Method: method, Path: path, Body: body}, &out); err != nil {
		return err
	}

	if out == nil {
		cc.Statusf("%s %s: no content\n", method, path)
		return nil
	}

	return printJSON(cc.Stdout, out)
}

// readData resolves the --data flag into a JSON document.
func readData(stdin io.Reader, arg string) (json.RawMessage, error) {
	var (
		raw []byte
		err error
	)

	switch {
	case arg == "@-":
		raw, err = io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		raw, err = os.ReadFile(arg[1:])
	default:
		raw = []byte(arg)
	}

	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	if !json.Valid(raw) {
		return nil, errors.New("request body is not valid JSON")
	}

	return json.RawMessage(raw), nil
}
