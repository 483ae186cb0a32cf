package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "Print the parsed strategy table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tNAME\tTRANSPORT\tPROXY\tRENDER\tWAIT\tTIMEOUT")
			for i, s := range cfg.Fetch.Strategies {
				timeout := "default"
				if s.Timeout > 0 {
					timeout = s.Timeout.String()
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%t\t%t\t%s\t%s\n",
					i+1, s.Name, s.Transport, s.Proxy, s.Render, s.Wait, timeout)
			}
			return w.Flush()
		},
	}
}
