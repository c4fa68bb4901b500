// LoWAPP node
// Runs the protocol core on a simulated radio, plus the shared medium
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/agsys/lowapp/internal/api"
	"github.com/agsys/lowapp/internal/auth"
	"github.com/agsys/lowapp/internal/bridge"
	"github.com/agsys/lowapp/internal/config"
	"github.com/agsys/lowapp/internal/console"
	"github.com/agsys/lowapp/internal/engine"
	"github.com/agsys/lowapp/internal/lora"
	"github.com/agsys/lowapp/internal/storage"
	"github.com/agsys/lowapp/internal/telemetry"
)

const version = "0.1.0"

var (
	configFile string
	rootCmd    = &cobra.Command{
		Use:   "lowapp-node",
		Short: "LoWAPP node",
		Long:  "Low-power wide-area peer-to-peer node. Runs the LoWAPP link layer on a simulated LoRa radio driven by AT commands.",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the node",
		RunE:  runNode,
	}

	mediumCmd = &cobra.Command{
		Use:   "medium",
		Short: "Run the shared medium the simulated radios talk through",
		RunE:  runMedium,
	}

	tokenCmd = &cobra.Command{
		Use:   "token [subject]",
		Short: "Issue a bearer token for the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE:  issueToken,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("LoWAPP node v" + version)
		},
	}

	mediumIn  string
	mediumOut string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/lowapp/node.yaml", "Configuration file path")

	defaults := lora.DefaultMediumConfig()
	mediumCmd.Flags().StringVar(&mediumIn, "in", defaults.InURL, "Endpoint radios publish to")
	mediumCmd.Flags().StringVar(&mediumOut, "out", defaults.OutURL, "Endpoint radios subscribe to")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mediumCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setLogLevel(name string) {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		log.Warn().Str("level", name).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// waitSignal blocks until SIGINT or SIGTERM
func waitSignal() os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return <-sigChan
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadNode(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setLogLevel(cfg.Log.Level)
	telemetry.SetBuildInfo(version)

	logger := log.With().Str("node", cfg.Node.Name).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Radio
	simCfg := lora.DefaultSimConfig()
	simCfg.UplinkURL = cfg.Medium.UplinkURL
	simCfg.DownlinkURL = cfg.Medium.DownlinkURL
	simCfg.RSSI = cfg.Medium.RSSI
	if cfg.Medium.SNR != 0 {
		simCfg.SNR = cfg.Medium.SNR
	}
	radio := lora.NewSimRadio(simCfg, logger)
	if err := radio.Start(); err != nil {
		return fmt.Errorf("failed to start radio: %w", err)
	}
	defer radio.Stop()

	// Protocol core
	rt := engine.NewRuntime(radio, config.NewFileStore(cfg.Node.RecordPath))
	core := engine.New(rt, logger)

	if cfg.Database.Path != "" {
		db, err := storage.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer db.Close()
		core.SetJournal(db)
	}

	// Host surfaces subscribe before the core boots so BOOT OK is seen
	if cfg.Console.Stdio {
		serial := console.NewSerial(os.Stdin, os.Stdout, core, logger)
		rt.Subscribe(serial.Write)
		go func() {
			if err := serial.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Console stopped")
			}
		}()
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(core, auth.NewManager(cfg.API.JWTSecret, cfg.API.TokenTTL), logger)
		rt.Subscribe(apiServer.Record)
		go func() {
			if err := apiServer.ListenAndServe(cfg.API.Addr); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("API server stopped")
			}
		}()
	}

	if cfg.Console.RemoteURL != "" {
		remoteCfg := console.DefaultRemoteConfig()
		remoteCfg.URL = cfg.Console.RemoteURL
		remoteCfg.AuthToken = cfg.Console.AuthToken
		remoteCfg.NodeName = cfg.Node.Name

		remote := console.NewRemote(remoteCfg, core, logger)
		rt.Subscribe(remote.Send)
		if err := remote.Start(ctx); err != nil {
			return fmt.Errorf("failed to start remote console: %w", err)
		}
		defer remote.Stop()
	}

	node := engine.NewNode(core, logger)
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}

	// The subject depends on the ids loaded by the core
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("lowapp-node "+cfg.Node.Name))
		if err != nil {
			node.Stop()
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()

		prefix := cfg.NATS.Subject
		if prefix == "" {
			st := core.Snapshot()
			prefix = bridge.Subject(st.GroupID, st.DeviceID)
		}
		b := bridge.NewNATS(nc, core, prefix, logger)
		rt.Subscribe(b.Publish)
		go func() {
			if err := b.Start(ctx); err != nil && err != context.Canceled {
				logger.Error().Err(err).Msg("NATS bridge stopped")
			}
		}()
	}

	logger.Info().Str("record", cfg.Node.RecordPath).Str("radio", radio.ID()).Msg("LoWAPP node running")

	sig := waitSignal()
	logger.Info().Stringer("signal", sig).Msg("Shutting down")

	cancel()
	if apiServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("API shutdown")
		}
	}
	if err := node.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Error during shutdown")
	}

	logger.Info().Msg("Shutdown complete")
	return nil
}

func runMedium(cmd *cobra.Command, args []string) error {
	m := lora.NewMedium(lora.MediumConfig{InURL: mediumIn, OutURL: mediumOut}, log.Logger)
	if err := m.Start(); err != nil {
		return fmt.Errorf("failed to start medium: %w", err)
	}

	sig := waitSignal()
	log.Info().Stringer("signal", sig).Uint64("forwarded", m.Forwarded()).Msg("Stopping medium")
	return m.Stop()
}

func issueToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadNode(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.API.JWTSecret == "" {
		return fmt.Errorf("api.jwt_secret is not set")
	}

	token, err := auth.NewManager(cfg.API.JWTSecret, cfg.API.TokenTTL).GenerateToken(args[0], cfg.Node.Name)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
