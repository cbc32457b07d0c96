package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newConfigCmd(configPath *string) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets removed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if validate {
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.Summary())
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "fail when the configuration would not start a server")
	return cmd
}
