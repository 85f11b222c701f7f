package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"ppbverify/internal/config"
	"ppbverify/internal/verify"
	"ppbverify/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	kindFlag    string
	configFile  string
	envFile     string
	selectedCfg config.Config
	logger      *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "ppb-verify",
	Short: "ppb-verify checks facility, pharmacist and pharmtech licenses against the Pharmacy and Poisons Board portal.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		kind, err := verify.ParseKind(kindFlag)
		if err != nil {
			return err
		}
		cfg, err := config.Load(config.LoadOptions{
			Kind:    string(kind),
			File:    configFile,
			EnvFile: envFile,
		})
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		selectedCfg = cfg

		logger, err = telemetry.InitSlog(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			logger.Warn("falling back to info logs", "err", err)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&kindFlag, "kind", "k", string(verify.KindFacility), "Record kind: facility, pharmacist or pharmtech.")
	flags.StringVar(&configFile, "config", "", "Optional json5 config file, merged with its .local sibling.")
	flags.StringVar(&envFile, "env-file", ".env", "Optional dotenv file, the process environment wins over it.")
}

func selectedKind() verify.Kind {
	kind, _ := verify.ParseKind(kindFlag)
	return kind
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
