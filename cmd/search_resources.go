package cmd

import "github.com/spf13/cobra"

var groupByArtifact bool

var searchResourcesCmd = &cobra.Command{
	Use:   "search-resources <query>",
	Short: "Find .proto (and future generator) resources whose path contains query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := loadRootContext()
		if err != nil {
			return err
		}
		defer rc.Close()

		if groupByArtifact {
			grouped, err := rc.Query.ResourceSearchByArtifact(args[0])
			if err != nil {
				return err
			}
			return printJSON(grouped)
		}

		results, err := rc.Query.SearchResources(args[0])
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	searchResourcesCmd.Flags().BoolVar(&groupByArtifact, "by-artifact", false, "group results by owning artifact coordinate")
	rootCmd.AddCommand(searchResourcesCmd)
}
