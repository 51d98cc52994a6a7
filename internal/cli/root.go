// Package cli implements the meridian CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/meridian/internal/config"
	"github.com/rcliao/meridian/internal/logger"
	"github.com/rcliao/meridian/internal/store"
)

var (
	configPath string
	dbPath     string
	cfg        *config.Config
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Macro news analysis pipeline",
	Long: "Ingests macro and financial news, scores significance, interprets priority events " +
		"against historical precedent and assembles a daily briefing. SQLite-backed, single binary.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(getConfigPath())
		if err != nil {
			return err
		}
		if dbPath != "" {
			c.DB = dbPath
		}
		cfg = c
		return logger.Init(cfg.Log.Level, cfg.Log.File)
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $MERIDIAN_CONFIG)")
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $MERIDIAN_DB or ~/.meridian/meridian.db)")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("MERIDIAN_CONFIG")
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.DB)
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// readInput reads a named file, or stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
