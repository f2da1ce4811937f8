package cmd

import "github.com/spf13/cobra"

var searchImplementationsCmd = &cobra.Command{
	Use:   "search-implementations <fqClassName>",
	Short: "Find every class that transitively extends or implements fqClassName",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := loadRootContext()
		if err != nil {
			return err
		}
		defer rc.Close()

		results, err := rc.Query.SearchImplementations(args[0])
		if err != nil {
			return err
		}
		return printJSON(results)
	},
}

func init() {
	rootCmd.AddCommand(searchImplementationsCmd)
}
