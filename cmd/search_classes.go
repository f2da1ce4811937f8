package cmd

import "github.com/spf13/cobra"

var searchClassesCmd = &cobra.Command{
	Use:   "search-classes <query>",
	Short: "Search indexed classes by fragment, glob (*,?), or regex:<pattern>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := loadRootContext()
		if err != nil {
			return err
		}
		defer rc.Close()

		results, err := rc.Query.SearchClasses(args[0])
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	rootCmd.AddCommand(searchClassesCmd)
}
