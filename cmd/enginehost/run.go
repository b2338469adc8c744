package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leandrodaf/enginedriver/internal/config"
	"github.com/leandrodaf/enginedriver/internal/logger"
	"github.com/leandrodaf/enginedriver/sdk/contracts"
	"github.com/leandrodaf/enginedriver/sdk/engine"
	"github.com/spf13/cobra"
)

var (
	argConfig     string
	argDriver     string
	argDevice     string
	argBufferSize uint32
	argSampleRate float64
	argMode       string

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the engine until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
)

func init() {
	runCmd.Flags().StringVarP(&argConfig, "config", "c", config.DefaultFileName, "Config file")
	runCmd.Flags().StringVarP(&argDriver, "driver", "d", "", "Audio back-end, overrides the config file")
	runCmd.Flags().StringVarP(&argDevice, "device", "", "", "Audio device, overrides the config file")
	runCmd.Flags().Uint32VarP(&argBufferSize, "buffer-size", "", 0, "Buffer size in frames, overrides the config file")
	runCmd.Flags().Float64VarP(&argSampleRate, "sample-rate", "", 0, "Sample rate, overrides the config file")
	runCmd.Flags().StringVarP(&argMode, "mode", "m", "", "Process mode (rack or patchbay), overrides the config file")
}

// loadConfig reads the config file. A missing default file is not an error.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(argConfig)
	if errors.Is(err, config.ErrNotFound) && !cmd.Flags().Changed("config") {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return config.Config{}, err
	}

	if argDriver != "" {
		cfg.Driver = argDriver
	}
	if argDevice != "" {
		cfg.Device = argDevice
	}
	if argBufferSize != 0 {
		cfg.BufferSize = argBufferSize
	}
	if argSampleRate != 0 {
		cfg.SampleRate = argSampleRate
	}
	if argMode != "" {
		cfg.ProcessMode = argMode
	}
	if _, err := cfg.Mode(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Config) error {
	log := logger.NewDevelopmentLogger()
	defer engine.Shutdown()

	opts := append(cfg.Options(),
		contracts.WithLogger(log),
		contracts.WithHostObserver(contracts.ObserverFunc(func(n contracts.Notification) {
			logNotification(log, n)
		})),
	)

	if cfg.MIDIBackend != "" {
		backend, err := engine.NewMIDIBackend(cfg.MIDIBackend, log, cfg.ClientName)
		if err != nil {
			return err
		}
		defer backend.Close()
		opts = append(opts, contracts.WithMIDIBackend(backend))
	}

	e, err := engine.NewEngine(cfg.Driver, opts...)
	if err != nil {
		return err
	}

	clientName := cfg.ClientName
	if clientName == "" {
		clientName = engine.DefaultClientName
	}
	if err := e.Init(clientName); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer e.Close()

	for _, name := range cfg.MIDIInputs {
		if !e.ConnectExternalGraphPort(contracts.ConnectionMIDIInput, 0, name) {
			log.Warn("MIDI input not connected", log.Field().String("name", name))
		}
	}
	for _, name := range cfg.MIDIOutputs {
		if !e.ConnectExternalGraphPort(contracts.ConnectionMIDIOutput, 0, name) {
			log.Warn("MIDI output not connected", log.Field().String("name", name))
		}
	}
	if len(cfg.MIDIInputs)+len(cfg.MIDIOutputs) > 0 {
		if err := e.PatchbayRefresh(true, false, true); err != nil {
			log.Warn("Patchbay refresh failed", log.Field().Error("error", err))
		}
	}

	interval := cfg.XrunReportInterval
	if interval <= 0 {
		interval = config.Default().XrunReportInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Interrupted, closing engine")
			return nil
		case <-ticker.C:
			if !e.IsRunning() {
				return fmt.Errorf("engine stopped: %s", e.LastError())
			}
			e.ReportXruns()
		}
	}
}

func logNotification(log contracts.Logger, n contracts.Notification) {
	switch n.Opcode {
	case contracts.OpcodeXruns:
		if n.Value1 > 0 {
			log.Warn("Xruns", log.Field().Int("count", n.Value1))
		}
	case contracts.OpcodeError:
		log.Error("Device error", log.Field().String("message", n.ValueStr))
	default:
		log.Debug("Engine notification",
			log.Field().String("opcode", n.Opcode.String()),
			log.Field().Uint32("id", n.ID),
			log.Field().Int("value1", n.Value1),
			log.Field().Int("value2", n.Value2),
			log.Field().Int("value3", n.Value3),
			log.Field().Float64("valueF", n.ValueF),
			log.Field().String("valueStr", n.ValueStr))
	}
}
