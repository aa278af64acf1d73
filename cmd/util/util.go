package util

import (
	"strings"

	"github.com/ValentinKolb/prefkv/lib/common"
	"github.com/ValentinKolb/prefkv/lib/db"
	"github.com/ValentinKolb/prefkv/lib/db/engines/maple"
	"github.com/ValentinKolb/prefkv/lib/store"
	"github.com/ValentinKolb/prefkv/lib/store/lstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the flags shared by all commands working on a preference file
func SetupStoreFlags(cmd *cobra.Command) {
	key := "data-file"
	cmd.PersistentFlags().String(key, "prefs.db", WrapString("The snapshot file of the preference store. An empty value keeps the store in memory"))

	key = "watch"
	cmd.PersistentFlags().Bool(key, false, WrapString("Reload the data file when another process changes it"))

	key = "qualifier"
	cmd.PersistentFlags().String(key, "default", WrapString("Qualifier that separates cached preferences of the same name and type"))

	key = "background-workers"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum number of concurrent store reads (0 means unlimited)"))

	key = "timeout"
	cmd.PersistentFlags().Int64(key, 5, WrapString("Timeout in seconds for reading a preference"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print the collected metrics after the command finished"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig loads env files and enables PREFKV_ environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("prefkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// ProcessConfig binds the flags of cmd to viper, reads the configuration and
// applies the log level.
func ProcessConfig(cmd *cobra.Command) (*common.Config, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	conf := &common.Config{
		DataFile:          viper.GetString("data-file"),
		Watch:             viper.GetBool("watch"),
		Qualifier:         viper.GetString("qualifier"),
		BackgroundWorkers: viper.GetInt("background-workers"),
		TimeoutSecond:     viper.GetInt64("timeout"),
		Metrics:           viper.GetBool("metrics"),
		LogLevel:          viper.GetString("log-level"),
	}
	if conf.Qualifier == "" {
		conf.Qualifier = "default"
	}
	if conf.TimeoutSecond <= 0 {
		conf.TimeoutSecond = 5
	}

	if err := common.InitLoggers(conf.LogLevel); err != nil {
		return nil, err
	}
	return conf, nil
}

// OpenStore opens the preference store described by conf
func OpenStore(conf *common.Config) (store.IStore, error) {
	factory := func() db.KVDB {
		return maple.NewMapleDB(nil)
	}
	return lstore.Open(factory, lstore.Options{
		Path:  conf.DataFile,
		Watch: conf.Watch,
	})
}
