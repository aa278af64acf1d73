package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/prefkv/cmd/prefs"
	"github.com/ValentinKolb/prefkv/cmd/util"
	"github.com/ValentinKolb/prefkv/lib/common"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "prefkv",
		Short: "typed, observable preferences",
		Long: fmt.Sprintf(`prefkv (v%s)

Reads, writes and watches typed preferences stored in a local snapshot file.
The configuration can be set via command line flags or environment variables.
The format of the environment variables is PREFKV_<flag> (e.g. PREFKV_DATA_FILE=prefs.db)`, Version),
		SilenceUsage:      true,
		PersistentPreRunE: processConfig,
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if config != nil && config.Metrics {
				common.WriteMetrics(cmd.OutOrStdout())
			}
			common.SyncLoggers()
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of prefkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "prefkv v%s\n", Version)
		},
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.String())
		},
	}

	config *common.Config
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Flags
	util.SetupStoreFlags(RootCmd)

	// Add Commands
	RootCmd.AddCommand(prefs.Commands()...)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configCmd)
}

// processConfig reads the configuration from the command line flags and
// environment variables and hands it to the commands
func processConfig(cmd *cobra.Command, _ []string) error {
	c, err := util.ProcessConfig(cmd)
	if err != nil {
		return err
	}
	config = c
	prefs.SetConfig(c)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
