package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/scraperhub/internal/server"
)

func newPluginsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "Lists discovered plugins and the scrapers they register",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := server.DiscoverPlugins(cmd.Context(), c.cfg, c.logger.Named("plugins"))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLUGIN\tDOMAIN\tDIR")
			for _, integ := range registry.Integrations() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", integ.Name, integ.Domain, integ.Dir)
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write plugins: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "SCRAPERS")
			for _, name := range registry.ScraperNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
