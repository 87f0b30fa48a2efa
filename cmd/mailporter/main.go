// Command mailporter expone el relay HTTP → SMTP y herramientas de operación.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/satish603/MailPorter/internal/app"
	"github.com/satish603/MailPorter/internal/config"
	"github.com/satish603/MailPorter/internal/observability/logger"
)

// appOptions se pasan a app.New en los comandos que despachan.
var appOptions []app.Option

func main() {
	// .env es opcional; las variables del entorno real ganan
	_ = godotenv.Load()

	cfgPath := envOr("MAILPORTER_CONFIG", config.DefaultPath)

	root := &cobra.Command{
		Use:           "mailporter",
		Short:         "Relay de formularios de contacto a SMTP por provider/brand",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Ruta del YAML de configuración (env MAILPORTER_CONFIG)")

	root.AddCommand(
		newServeCmd(&cfgPath),
		newCheckCmd(&cfgPath),
		newSendCmd(&cfgPath),
	)

	err := root.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// loadConfig carga el YAML e inicializa el logger con app.env / app.log_level.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.App.Name,
		Version:     app.Version,
	})
	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
