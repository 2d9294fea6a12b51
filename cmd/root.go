package cmd

import (
	"github.com/spf13/cobra"
)

type app struct {
	envFile  string
	logLevel string
	cfg      AppConfig
}

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "intakeflow",
		Short: "Intake pipeline: validate, clarify, research and report",
		Long: "intakeflow validates a client intake document, asks for every missing field, " +
			"and once the intake is confirmed runs the research and generation agents.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.envFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			initLogger(cfg, a.logLevel)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newValidateCmd(a),
		newRunCmd(a),
		newServeCmd(a),
		newMemoryCmd(a),
		newSessionCmd(a),
	)

	return rootCmd
}
