package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/jrjohn/arcana-pos-go/internal/di"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:   "posagent",
		Short: "Runs the offline queue, sync engine and local status API for a register",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fx.New(
				fx.Supply(di.ConfigPath(configPath)),

				// Load all application modules via DI
				di.AppModule,

				// Print startup banner
				fx.Invoke(di.PrintBanner),

				// Configure fx logger to use zap
				fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: logger}
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default: ./config.yaml, ./config/config.yaml, /etc/arcana-pos/config.yaml)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
