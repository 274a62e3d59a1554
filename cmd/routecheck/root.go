package main

import (
	"github.com/spf13/cobra"

	"github.com/keithlinneman/siteedge/internal/routing"
	v "github.com/keithlinneman/siteedge/internal/version"
)

type rootFlags struct {
	config string
}

func newRootCmd() *cobra.Command {
	rf := &rootFlags{}
	root := &cobra.Command{
		Use:   "routecheck",
		Short: "Inspect siteedge routing decisions and config",
		Long: `routecheck applies the same normalize, locale, classify and canonicalize
pipeline the server runs, without starting a listener.`,
		Version:       v.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&rf.config, "config", "c", "", "routing config YAML (built-in defaults when empty)")

	root.AddCommand(newDecideCmd(rf), newValidateCmd(rf), newConfigCmd(rf))
	return root
}

// loadConfig returns the defaults overlaid with the --config file, if any.
func (rf *rootFlags) loadConfig() (routing.Config, error) {
	if rf.config == "" {
		return routing.DefaultConfig(), nil
	}
	return routing.LoadConfig(rf.config)
}

func (rf *rootFlags) router() (*routing.Router, error) {
	c, err := rf.loadConfig()
	if err != nil {
		return nil, err
	}
	return routing.New(c)
}
