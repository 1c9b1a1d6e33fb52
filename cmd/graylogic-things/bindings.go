package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-things/internal/bridge"
	"github.com/nerrad567/gray-logic-things/internal/bridges/mqttbridge"
	"github.com/nerrad567/gray-logic-things/internal/infrastructure/logging"
)

// newBindingsCmd lists the bindings of a catalog without connecting to
// anything.
func newBindingsCmd() *cobra.Command {
	var catalog string
	cmd := &cobra.Command{
		Use:   "bindings",
		Short: "List the bindings in the binding catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if catalog == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				catalog = cfg.Bindings.Catalog
			}
			if catalog == "" {
				return fmt.Errorf("no binding catalog configured")
			}

			// Factories are never called while listing.
			known := map[string]bridge.Factory{
				mqttbridge.Kind: mqttbridge.Factory(nil, logging.Default()),
			}
			registry, err := bridge.LoadCatalog(catalog, known)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tBRIDGE\tDISCOVERY\tMATCH")
			for _, b := range registry.Bindings() {
				discovery := "yes"
				if b.SkipDiscovery {
					discovery = "no"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", b.ModelCode, b.Bridge, discovery, b.Match)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&catalog, "catalog", "", "catalog file (default bindings.catalog from the config)")
	return cmd
}
