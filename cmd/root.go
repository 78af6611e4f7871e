package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/perchsec/kestrel/lib"
)

var cfgFile string
var debugLogging bool
var prettyLogs bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kestrel",
	Short: "Continuous bug bounty program scanner",
	Long: `Kestrel periodically scans the assets of bug bounty programs while
staying inside each program's rules: a bounded number of scans per day,
a minimum spacing between scans, and a per-program request rate cap.

Targets come from a remote program feed (or the config file in manual
mode), scan history is persisted between runs, and findings above the
reporting threshold are written as Markdown reports and pushed via ntfy.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kestrel.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "Use debug level logging")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", true, "Use pretty logging instead JSON")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logToFile := viper.GetBool("logging.file.enabled")
		logFile := viper.GetString("logging.file.path")
		switch {
		case prettyLogs && logToFile:
			lib.ZeroConsoleAndFileLog(logFile)
		case prettyLogs:
			lib.ZeroConsoleLog()
		case logToFile:
			lib.ZeroJSONAndFileLog(logFile)
		default:
			lib.ZeroJSONLog()
		}
		if debugLogging {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
		return nil
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			log.Error().Err(err).Msg("Could not detect home directory")
			os.Exit(1)
		}

		// Search config in home directory with name ".kestrel" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".kestrel")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
	}
}
