package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/partsfetch/engine"
	"github.com/use-agent/partsfetch/target"
)

func newCheckCmd(noBrowser *bool) *cobra.Command {
	var (
		strategy string
		sampleAs string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check <vin|url>",
		Short: "Run one fetch-and-classify and print the JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}

			var t target.Target
			if strings.Contains(args[0], "://") {
				t, err = target.ForURL(cfg.Target, args[0])
			} else {
				t, err = target.ForVIN(cfg.Target, args[0])
			}
			if err != nil {
				return err
			}

			a, err := buildApp(cfg, !*noBrowser)
			if err != nil {
				return err
			}
			defer a.Close()

			if sampleAs == "" {
				sampleAs = cfg.Sample.Mode
			}
			rep := a.deps.Dispatcher.Run(cmd.Context(), t, engine.Options{Strategy: strategy, Timeout: timeout})

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(a.deps.Response(rep, sampleAs, cfg.Sample.Length)); err != nil {
				return err
			}
			if !rep.Success() {
				return fmt.Errorf("fetch failed: %s", rep.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", "", "run only the named strategy")
	cmd.Flags().StringVar(&sampleAs, "sample", "", "sample mode: raw, text or markdown")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "override every per-attempt timeout")
	return cmd
}
