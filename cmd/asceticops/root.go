package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/config"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/logging"
)

const Version = "0.1.0"

var (
	v   = config.New()
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "asceticops",
		Short: "Run deferred database operations",
		Long: fmt.Sprintf(`asceticops (v%s)

Runs raw statements as deferred operations, standalone, as one
sequential batch or inside an interactive transaction.`, Version),
		SilenceUsage: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of asceticops",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "asceticops v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(func() { config.LoadEnvFiles() })
	config.SetupFlags(rootCmd)

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig binds the flags of cmd and configures logging.
func loadConfig(cmd *cobra.Command, vp *viper.Viper) error {
	if err := vp.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	c, err := config.Load(vp)
	if err != nil {
		return err
	}
	logging.SetLevel(c.LogLevel)
	logging.SetOutputFormat(c.LogFormat)
	cfg = c
	return nil
}
