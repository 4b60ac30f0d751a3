package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"emailmanager/internal/app"
	"emailmanager/internal/config"
	"emailmanager/internal/logging"
)

var (
	cfg config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "emailmanager",
	Short:         "Classify incoming mail and file it into Notion",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		log = logging.New(cfg.LogLevel, cfg.LogPretty)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd, statsCmd, cleanupCmd, rebuildCmd, billingCmd, exportCmd, showCmd)
}

func main() {
	must(rootCmd.Execute())
}

// openApp opens the local store. Callers defer Close.
func openApp() (*app.App, error) {
	return app.Open(cfg, log)
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
