package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newProbeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report model and llama-server discovery without starting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := root.newLogger(cfg.LogLevel, os.Stderr)
			if err != nil {
				return err
			}
			rt := newRuntime(cfg, log)
			report := rt.manager.Discover(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
