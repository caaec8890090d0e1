package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/datasync-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd(), newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented config file with every default",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		shown := *cc.Cfg
		if shown.Auth.APIKey != "" {
			shown.Auth.APIKey = "********"
		}

		return printJSON(cc.Stdout, shown)
	}

	return config.RenderEffective(cc.Cfg, cc.Stdout)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := config.WriteTemplate(cc.Cfg.ConfigPath, cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Wrote %s\n", cc.Cfg.ConfigPath)

	return nil
}
