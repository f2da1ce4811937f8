package cmd

import (
	"context"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
)

var forceRefresh bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Scan configured Maven/Gradle roots and index any new artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := loadRootContext()
		if err != nil {
			return err
		}
		defer rc.Close()

		ctx := context.Background()

		if forceRefresh {
			res, err := rc.Indexer.Refresh(ctx)
			if err != nil {
				return err
			}
			logger.Infof("refresh run %s: scanned=%d indexed=%d failed=%d duration=%s",
				res.RunID, res.ArtifactsScanned, res.ArtifactsIndexed, res.ArtifactsFailed, res.Duration)
			return nil
		}

		res, err := rc.Indexer.Index(ctx)
		if err != nil {
			return err
		}
		logger.Infof("index run %s: scanned=%d indexed=%d failed=%d duration=%s",
			res.RunID, res.ArtifactsScanned, res.ArtifactsIndexed, res.ArtifactsFailed, res.Duration)
		return nil
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&forceRefresh, "force", false, "discard the existing index and rebuild from scratch")
	rootCmd.AddCommand(refreshCmd)
}
