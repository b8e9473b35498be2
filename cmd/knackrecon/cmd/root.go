package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile       string
	logLevel      string
	logFormat     string
	pageSize      int
	ratePerSec    float64
	applyChanges  bool
	reportDir     string
	establishment string
	keepPolicy    string
)

var rootCmd = &cobra.Command{
	Use:   "knackrecon",
	Short: "Record reconciliation for hosted student data",
	Long: `A CLI tool for auditing and repairing student records held in a hosted
objects/records data store.

Features:
  - Pair reconciliation between connected collections
  - Multi-hop chain validation across the full student data model
  - Duplicate detection with oldest/newest keep policies
  - Year-end archive-and-clear with CSV snapshots
  - Dry-run by default; mutations need --apply plus a typed confirmation`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "knackrecon.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Processing overrides
	rootCmd.PersistentFlags().IntVar(&pageSize, "page-size", 0,
		"Override rows per page for fetches")
	rootCmd.PersistentFlags().Float64Var(&ratePerSec, "rate", 0,
		"Override request budget in requests per second")
	rootCmd.PersistentFlags().StringVar(&keepPolicy, "keep", "",
		"Override duplicate keep policy (oldest, newest)")

	// Scope and safety
	rootCmd.PersistentFlags().StringVar(&establishment, "establishment", "",
		"Limit the run to one establishment (name or record ID)")
	rootCmd.PersistentFlags().BoolVar(&applyChanges, "apply", false,
		"Actually perform staged mutations (default is dry-run)")
	rootCmd.PersistentFlags().StringVar(&reportDir, "report", "",
		"Directory for CSV report exports (disabled when empty)")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel   string
	LogFormat  string
	PageSize   int
	RatePerSec float64
	KeepPolicy string
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		PageSize:   pageSize,
		RatePerSec: ratePerSec,
		KeepPolicy: keepPolicy,
	}
}
