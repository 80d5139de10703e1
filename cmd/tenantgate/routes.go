package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/platinummonkey/tenantgate/pkg/api"
	"github.com/platinummonkey/tenantgate/pkg/guard"
	"github.com/spf13/cobra"
)

func routesCmd() *cobra.Command {
	var routesFile string

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the route table the guard enforces, in match order",
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []guard.Rule
			if routesFile != "" {
				var err error
				extra, err = guard.LoadRulesFile(routesFile)
				if err != nil {
					return err
				}
			}

			table, err := api.DescribeRoutes(extra)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ROUTE\tKIND\tAPI\tPERMISSION")
			for _, rule := range table.Rules() {
				perm := string(rule.Permission)
				if perm == "" {
					perm = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", rule, rule.Kind, rule.API, perm)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&routesFile, "routes-file", "", "YAML file of additional route rules")
	return cmd
}
