package main

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/taomfnbd/chamalloW/cmd/chamallow/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "chamallow",
	Short: "chamallow drives AI-generated social-media content through webhook automations",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		initLogger()
	},
}

func initLogger() {
	logLevel := viper.GetString("log-level")
	verbose := viper.GetBool("verbose")
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}

	err := InitLogger(&logConfig{
		Level:      logLevel,
		LogFile:    viper.GetString("log-file"),
		LogFormat:  viper.GetString("log-format"),
		WithCaller: viper.GetBool("with-caller"),
	})
	cobra.CheckErr(err)
}

type logConfig struct {
	WithCaller bool
	Level      string
	LogFormat  string
	LogFile    string
}

func InitLogger(config *logConfig) error {
	if config.WithCaller {
		log.Logger = log.With().Caller().Logger()
	}
	// default is json
	var logWriter io.Writer
	if config.LogFormat == "text" {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		logWriter = os.Stderr
	}

	if config.LogFile != "" {
		logWriter = io.MultiWriter(
			logWriter,
			zerolog.ConsoleWriter{
				NoColor: true,
				Out: &lumberjack.Logger{
					Filename:   config.LogFile,
					MaxSize:    10, // megabytes
					MaxBackups: 3,
					MaxAge:     28,    //days
					Compress:   false, // disabled by default
				},
			})
	}

	log.Logger = log.Output(logWriter)

	switch config.Level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	}

	return nil
}

func initConfig() error {
	viper.SetEnvPrefix("chamallow")

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.chamallow")

		xdgConfigPath, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(xdgConfigPath + "/chamallow")
		}
	}

	err := viper.ReadInConfig()
	// if the file does not exist, continue normally
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Config file not found; ignore error
	} else if err != nil {
		return err
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	log.Debug().
		Str("config", viper.ConfigFileUsed()).
		Msg("loaded configuration")

	return nil
}

func main() {
	_ = rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().Bool("with-caller", false, "Log caller")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file (default: stderr)")

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default ~/.chamallow/config.yml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose output")

	rootCmd.PersistentFlags().String("linkedin-webhook", "", "LinkedIn generation webhook URL")
	rootCmd.PersistentFlags().String("instagram-webhook", "", "Instagram generation webhook URL")
	rootCmd.PersistentFlags().String("images-webhook", "", "Image generation webhook URL")
	rootCmd.PersistentFlags().String("agent-webhook", "", "Agent configuration webhook URL")
	rootCmd.PersistentFlags().String("planning-webhook", "", "Planning configuration webhook URL")
	rootCmd.PersistentFlags().String("relay-url", "", "CORS relay prefix for the transport fallback")
	rootCmd.PersistentFlags().String("history-file", "", "Path to the conversation history file")
	rootCmd.PersistentFlags().String("session-id", "", "Session id forwarded with generation requests")

	err := viper.BindPFlags(rootCmd.PersistentFlags())
	cobra.CheckErr(err)

	err = initConfig()
	cobra.CheckErr(err)

	rootCmd.AddCommand(cmds.NewChatCommand())
	rootCmd.AddCommand(cmds.NewAgentCommand())
	rootCmd.AddCommand(cmds.NewPlanningCommand())
}
