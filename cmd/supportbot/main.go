package main

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"techsupport.dev/assistant/internal/config"
)

var (
	logLevel string
	// configErr is kept for subcommands to decide whether a missing setting
	// matters to them.
	configErr error
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "supportbot",
	Short: "Rule-based technical support assistant",
	Long: `supportbot walks users through step-by-step troubleshooting guides.
It matches a described problem to known issues in the knowledge base and
presents their solution steps one at a time.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configErr = config.LoadConfig()
		if !cmd.Flags().Changed("log-level") {
			logLevel = config.AppConfig.LogLevel
		}
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			log.WithError(err).Fatal("cannot parse log-level")
		}
		log.SetLevel(level)
		log.Debug("debug logging enabled")
	},
}

func main() {
	// Add some millisecond precision to log timestamps, useful for debugging performance.
	formatter := new(log.TextFormatter)
	formatter.TimestampFormat = "2006-01-02T15:04:05.999Z07:00"
	formatter.FullTimestamp = true
	log.SetFormatter(formatter)

	rootCmd.AddCommand(
		NewServeCommand(),
		NewSeedCommand(),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace,debug,info,warn,error), overrides LOG_LEVEL")

	err := rootCmd.Execute()
	if err != nil {
		log.WithError(err).Fatal("could not execute root command")
	}
}
