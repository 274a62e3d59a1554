package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keithlinneman/siteedge/internal/xerrors"
)

func newValidateCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check a routing config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rf.config == "" {
				return xerrors.New("validate needs --config")
			}
			rt, err := rf.router()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (locales %v, default %s)\n", rf.config, rt.Locales(), rt.DefaultLocale())
			return nil
		},
	}
}

func newConfigCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective routing config as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := rf.router()
			if err != nil {
				return err
			}
			// the compiled config, so derived entries like the override key show up
			data, err := rt.Config().YAML()
			if err != nil {
				return xerrors.Wrap(err, "render config")
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
