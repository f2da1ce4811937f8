package cmd

import (
	"fmt"
	"os"

	"github.com/flanksource/arch-unit/config"
	"github.com/flanksource/arch-unit/internal/rootctx"
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "javadex",
	Short: "Index and query a local Maven/Gradle dependency cache",
	Long: `javadex scans a local Maven (~/.m2/repository) or Gradle
(~/.gradle/caches/modules-2/files-2.1) dependency cache, indexes every
class, interface, and .proto-generated type it finds, and answers
code-discovery queries against that index without ever invoking a build.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.javadex.yaml)")
}

// initConfig locates the config file the same way the teacher does
// (explicit --config, else $HOME/.javadex.yaml via viper), but leaves
// actually parsing it to config.Load so internal/* keeps a single typed
// entry point.
func initConfig() {
	if cfgFile != "" {
		return
	}

	home, err := os.UserHomeDir()
	if err != nil {
		logger.Debugf("could not resolve home directory: %v", err)
		return
	}

	viper.AddConfigPath(home)
	viper.SetConfigType("yaml")
	viper.SetConfigName(".javadex")
	if err := viper.ReadInConfig(); err == nil {
		cfgFile = viper.ConfigFileUsed()
		logger.Infof("using config file: %s", cfgFile)
	}
}

// loadRootContext reads --config (or the discovered default) and builds a
// fully-wired RootContext. Every subcommand calls this exactly once.
func loadRootContext() (*rootctx.RootContext, error) {
	opts, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger.Debugf("loaded options: mavenRepo=%s gradleRepo=%s", opts.MavenRepo, opts.GradleRepo)
	return rootctx.New(opts)
}
