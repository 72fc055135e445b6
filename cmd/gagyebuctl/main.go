// Command gagyebuctl runs administrative tasks against the household
// database.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"gagyebu/internal/cli"
	"gagyebu/internal/config"
	applog "gagyebu/internal/log"
)

type app struct {
	logger *applog.Logger
	cfg    *config.Config
}

func main() {
	cli.LoadEnvFile()
	a := &app{}

	root := &cobra.Command{
		Use:           "gagyebuctl",
		Short:         "Administrative tasks for the gagyebu household tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			a.logger = cli.SetupLogger(applog.ComponentApp)
			a.cfg = config.Load()
			return a.cfg.ValidateWorker()
		},
	}
	root.AddCommand(a.migrateCmd(), a.summaryCmd(), a.snapshotCmd(), a.exportCmd())

	if err := root.Execute(); err != nil {
		if a.logger != nil {
			a.logger.Error("Command failed", applog.FieldError, err.Error())
		} else {
			os.Stderr.WriteString(err.Error() + "\n")
		}
		os.Exit(1)
	}
}
