package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	ET "github.com/IBM/fp-go/v2/either"
	"github.com/IBM/fp-go/v2/function"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal"
	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/config"
	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/telemetry"
	T "github.com/Qubut/IP-Claim/packages/grant_processor/internal/typing"
)

var (
	cfgFile   string
	cfg       config.Config
	v         = viper.New()
	logger    *zap.SugaredLogger
	providers telemetry.Providers
	services  *internal.Services
	Version   = "dev" // Set at build time: go build -ldflags "-X github.com/Qubut/IP-Claim/packages/grant_processor/cmd.Version=v1.0.0"
)

var RootCmd = &cobra.Command{
	Use:   "grant-processor",
	Short: "USPTO patent grant bulk data processor",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadWith(v, cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Log.LogDir != "" {
			if err := os.MkdirAll(cfg.Log.LogDir, 0o755); err != nil {
				return fmt.Errorf("create log directory: %w", err)
			}
		}

		telemetry.Version = Version
		providers, err = telemetry.Init(cmd.Context(), cfg.Telemetry, cfg.Log)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		logger = providers.Logger
		services, err = internal.InitServices(cfg, providers.Tracer, logger, providers.Meter)
		if err != nil {
			return fmt.Errorf("init services: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if providers.Shutdown != nil {
			if err := providers.Shutdown(context.Background()); err != nil {
				logger.Errorw("shutdown error", "err", err)
				return err
			}
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		if cfg.Download.Enabled {
			res := services.Downloader.FetchFiles(ctx)()
			err := function.Pipe1(
				res,
				ET.Fold(
					func(e error) error { return fmt.Errorf("download: %w", e) },
					func(_ []int64) error { return nil },
				),
			)
			if err != nil {
				return err
			}
		}
		if cfg.Extract.Enabled {
			res := services.Extractor.ExtractAll(ctx, cfg.Download.Directory)()
			err := function.Pipe1(
				res,
				ET.Fold(
					func(e error) error { return fmt.Errorf("extract: %w", e) },
					func(_ T.Unit) error { return nil },
				),
			)
			if err != nil {
				return err
			}
		}
		if cfg.Parse.Enabled {
			if err := services.Parser.ExportAll(ctx); err != nil {
				return fmt.Errorf("export: %w", err)
			}
		}
		logger.Info("All steps completed")
		return nil
	},
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// bindFlag ties a flag to a config key, e.g. "download.skip-exists" to
// download.skip_exists.
func bindFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag.Name, err))
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of grant-processor",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), Version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config operations",
}

var printConfigCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the current loaded configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "Path to config file (yaml/json/toml)")

	type flagDef struct {
		name, def, usage string
	}
	flags := []flagDef{
		{"log.log-level", "info", "Log level (debug/info/warn/error)"},
		{"log.log-dir", "logs", "Directory of the rotated JSON log"},
		{"telemetry.enabled", "true", "Enable OpenTelemetry"},
		{"telemetry.exporter", "none", "Telemetry exporter (otlp|stdout|none)"},
		{"telemetry.endpoint", "localhost:4317", "OTLP endpoint (host:port)"},
		{"telemetry.protocol", "grpc", "OTLP protocol (grpc|http)"},
		{"telemetry.insecure", "true", "Allow insecure OTLP connection"},
		{"telemetry.service-name", "grant-processor", "Service name for telemetry"},
		{"download.enabled", "false", "Enable download"},
		{"download.manifest-url", "", "URL of the bulk data manifest (JSON)"},
		{"download.directory", "data", "Download directory"},
		{"download.timeout", "30s", "Request timeout (duration)"},
		{"download.max-retries", "3", "Max retries"},
		{"download.concurrent-downloads", "4", "Concurrent downloads"},
		{"download.skip-exists", "true", "Skip files already downloaded and intact"},
		{"download.verify-sha1", "false", "Verify SHA-1 of downloaded files"},
		{"extract.enabled", "true", "Enable extract"},
		{"extract.delete-after-extract", "false", "Delete archives after extract"},
		{"extract.xml-only", "true", "Only extract XML members and nested archives"},
		{"parse.enabled", "true", "Enable export"},
		{"parse.input-dir", "data", "Directory searched for grant files"},
		{"parse.output", "grants.csv", "Export output path"},
		{"parse.format", "csv", "Export format (csv|arrow)"},
		{"parse.workers", "4", "Grant files decoded concurrently"},
		{"parse.charset", "utf-8", "Character set of the grant files"},
	}
	for _, f := range flags {
		RootCmd.PersistentFlags().String(f.name, f.def, f.usage)
		bindFlag(strings.ReplaceAll(f.name, "-", "_"), RootCmd.PersistentFlags().Lookup(f.name))
	}

	configCmd.AddCommand(printConfigCmd)

	RootCmd.AddCommand(downloadCmd)
	RootCmd.AddCommand(extractCmd)
	RootCmd.AddCommand(parseCmd)
	RootCmd.AddCommand(exportCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configCmd)
}
