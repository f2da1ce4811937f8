package cmd

import "github.com/spf13/cobra"

var searchArtifactsCmd = &cobra.Command{
	Use:   "search-artifacts <query>",
	Short: "Find artifacts whose groupId or artifactId contains query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := loadRootContext()
		if err != nil {
			return err
		}
		defer rc.Close()

		results, err := rc.Query.SearchArtifacts(args[0])
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	rootCmd.AddCommand(searchArtifactsCmd)
}
