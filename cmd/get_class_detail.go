package cmd

import (
	"context"
	"fmt"

	"github.com/flanksource/arch-unit/models"
	"github.com/spf13/cobra"
)

var detailKind string

var getClassDetailCmd = &cobra.Command{
	Use:   "get-class-detail <fqClassName>",
	Short: "Fetch signatures, Javadoc, or decompiled source for a class",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := loadRootContext()
		if err != nil {
			return err
		}
		defer rc.Close()

		kind := models.DetailKind(detailKind)
		switch kind {
		case models.DetailSignatures, models.DetailDocs, models.DetailSource:
		default:
			return fmt.Errorf("%w: --kind must be one of signatures, docs, source", models.ErrInvalidQuery)
		}

		detail, err := rc.Detail.GetClassDetail(context.Background(), args[0], kind)
		if err != nil {
			return err
		}
		return printJSON(detail)
	},
}

func init() {
	getClassDetailCmd.Flags().StringVar(&detailKind, "kind", string(models.DetailSignatures), "one of signatures, docs, source")
	rootCmd.AddCommand(getClassDetailCmd)
}
