package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/franz/songplay-etl/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "songplay",
		Short: "Load song metadata and activity logs into a songplay star schema",
		Long: `songplay loads two families of JSON-lines files into a star schema.

Song metadata files populate the songs and artists dimensions. Activity logs
populate the time and users dimensions and the songplays fact table, with
every playback matched against the known songs by title, artist and duration.

Each input file is committed in its own transaction and recorded in a load
ledger, so a run can be repeated safely and a malformed file never blocks
the rest of the batch.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/songplay.yaml)")
	rootCmd.PersistentFlags().String("driver", "sqlite", "warehouse driver (sqlite or postgres)")
	rootCmd.PersistentFlags().String("db", "songplay.db", "SQLite warehouse file")
	rootCmd.PersistentFlags().String("dsn", "", "PostgreSQL connection string (postgres driver)")
	rootCmd.PersistentFlags().String("artifacts", "artifacts", "directory for event logs and reports")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("dsn", rootCmd.PersistentFlags().Lookup("dsn"))
	viper.BindPFlag("artifacts", rootCmd.PersistentFlags().Lookup("artifacts"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("songplay")
		viper.SetConfigType("yaml")
	}

	// SONGPLAY_SONG_DATA overrides song-data, and so on
	viper.SetEnvPrefix("SONGPLAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
