package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configSource bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after merging defaults, the config file and
STRATA_* environment variables. Secrets are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if configSource {
			src := configPath
			if src == "" {
				src = "(defaults and environment only)"
			}
			fmt.Fprintf(out, "# source: %s\n", src)
		}
		c := *cfg
		c.Database.Password = mask(c.Database.Password)
		c.Signing.Key = mask(c.Signing.Key)
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(&c)
	},
}

func init() {
	configShowCmd.Flags().BoolVar(&configSource, "source", false, "print the path of the config file")
	configCmd.AddCommand(configShowCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
