package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appliancemon/internal/config"
	"appliancemon/internal/cycle"
	"appliancemon/internal/device"
	"appliancemon/internal/errors"
	"appliancemon/internal/logger"
	"appliancemon/internal/monitor"
	"appliancemon/internal/notify"
	"appliancemon/internal/pid"
	"appliancemon/internal/telemetry"
)

const probeTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.IsDebug(), cfg.IsVerbose(), logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("appliancemon failed")
	}
}

func run(cfg *config.Config) error {
	if err := pid.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.Database != "" {
		telemetryCfg.DBPath = cfg.Telemetry.Database
	}
	collector, err := telemetry.NewService(telemetryCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close telemetry")
		}
	}()

	backends, closeBackends, err := buildBackends(cfg.Notify)
	if err != nil {
		return err
	}
	defer closeBackends()

	dispatcher := notify.NewDispatcher(backends, notify.Options{
		MaxAttempts:  cfg.Notify.MaxAttempts,
		RetryBackoff: time.Duration(cfg.Notify.RetryBackoff) * time.Second,
	})

	client := device.NewKasaClient(cfg.SampleTimeoutDuration())
	sampler := device.NewSampler(client, cfg.SampleTimeoutDuration())

	appliances := cfg.ApplianceConfigs()
	probeDevices(client, appliances)

	mon, err := monitor.New(monitor.Config{
		PollInterval:    cfg.PollInterval(),
		ShutdownTimeout: cfg.ShutdownTimeoutDuration(),
	}, appliances, sampler, dispatcher, collector)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	runErr := mon.Run(ctx)

	if err := dispatcher.Close(cfg.ShutdownTimeoutDuration()); err != nil {
		logger.Warn().Err(err).Msg("Notifications still in flight at shutdown deadline")
	}

	logger.Info().Msg("Exiting...")

	return runErr
}

// buildBackends constructs every backend with complete settings. A partially
// configured backend is a startup error, not a silently skipped one.
func buildBackends(cfg config.Notify) ([]notify.Backend, func(), error) {
	var backends []notify.Backend
	var closers []io.Closer

	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close notification backend")
			}
		}
	}

	if cfg.Ntfy.Topic != "" || cfg.Ntfy.Server != "" {
		backend, err := notify.NewNtfy(notify.NtfyConfig{
			Server: cfg.Ntfy.Server,
			Topic:  cfg.Ntfy.Topic,
		})
		if err != nil {
			return nil, closeAll, err
		}
		backends = append(backends, backend)
	}

	if cfg.Pushover.Token != "" || cfg.Pushover.User != "" {
		backend, err := notify.NewPushover(notify.PushoverConfig{
			Token: cfg.Pushover.Token,
			User:  cfg.Pushover.User,
		})
		if err != nil {
			return nil, closeAll, err
		}
		backends = append(backends, backend)
	}

	if cfg.Telegram.BotToken != "" || cfg.Telegram.ChatID != "" {
		backend, err := notify.NewTelegram(notify.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
		})
		if err != nil {
			return nil, closeAll, err
		}
		backends = append(backends, backend)
	}

	if cfg.MQTT.Broker != "" {
		backend, err := notify.NewMQTT(notify.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
		})
		if err != nil {
			return nil, closeAll, err
		}
		backends = append(backends, backend)
		closers = append(closers, backend)
	}

	if len(backends) == 0 {
		logger.Warn().Msg("No notification backends configured, completions will only be logged")
	} else {
		for _, b := range backends {
			logger.Info().Str("backend", b.Name()).Msg("Notification backend enabled")
		}
	}

	return backends, closeAll, nil
}

// probeDevices checks each outlet's identity and energy-meter support at
// startup. Failures are warnings: an unreachable device enters DEGRADED on
// its first poll rather than blocking startup.
func probeDevices(client device.Client, appliances []cycle.Config) {
	errFactory := errors.New()

	for _, appliance := range appliances {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		info, err := client.SysInfo(ctx, appliance.DeviceID)
		cancel()

		if err != nil {
			logger.Warn().
				Str("appliance", appliance.Name).
				Str("device", appliance.DeviceID).
				Err(err).
				Msg("Could not reach device at startup")

			continue
		}

		if !info.HasEmeter {
			logger.ErrorWithCode(errFactory.WithData(device.ErrNoEmeter, appliance.DeviceID)).
				Str("appliance", appliance.Name).
				Msg("Device does not support energy monitoring")

			continue
		}

		logger.Info().
			Str("appliance", appliance.Name).
			Str("alias", info.Alias).
			Str("model", info.Model).
			Msg("Connected to device")
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
