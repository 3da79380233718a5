// Command feedback-buttons turns a row of push buttons into timestamped
// feedback records published over MQTT, sleeping between active periods.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/feedback-buttons/internal/clock"
	"github.com/sweeney/feedback-buttons/internal/config"
	"github.com/sweeney/feedback-buttons/internal/gpio"
	"github.com/sweeney/feedback-buttons/internal/logic"
	"github.com/sweeney/feedback-buttons/internal/mqtt"
	"github.com/sweeney/feedback-buttons/internal/netlink"
	"github.com/sweeney/feedback-buttons/internal/power"
	"github.com/sweeney/feedback-buttons/internal/state"
	"github.com/sweeney/feedback-buttons/internal/status"
	"github.com/sweeney/feedback-buttons/internal/telemetry"
	"github.com/sweeney/feedback-buttons/internal/web"
)

type options struct {
	configPath string
	envFile    string
	logLevel   string
	printState bool
	httpAddr   string
	stateFile  string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "/etc/feedback-buttons/config.yaml", "YAML config file (missing file uses defaults)")
	flag.StringVar(&opts.envFile, "env-file", "/etc/feedback-buttons/env", "dotenv file with secrets and overrides")
	flag.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.BoolVar(&opts.printState, "print-state", false, "Print retained state and input levels as JSON and exit")
	flag.StringVar(&opts.httpAddr, "http", "", "HTTP status address (empty to disable)")
	flag.StringVar(&opts.stateFile, "state-file", "", "override the retained state file")

	flag.Parse()

	log := newLogger(opts.logLevel)
	if err := run(opts, log); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}

func loadConfig(opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.LoadEnv(opts.envFile); err != nil {
		return cfg, err
	}
	if opts.stateFile != "" {
		cfg.StateFile = opts.stateFile
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(opts options, log zerolog.Logger) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	log = log.With().Str("device", cfg.DeviceID).Logger()

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}

	store := state.NewFileStore(cfg.StateFile)

	bank, err := gpio.NewRealBank(cfg.Chip, cfg.Pairs())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer bank.Close()

	// Inspection only: classifying would clear the state file on a cold start.
	if opts.printState {
		return printState(os.Stdout, store, bank)
	}

	wake, err := power.Classify(os.Getenv, store)
	if err != nil {
		log.Warn().Err(err).Msg("retained state unusable, starting cold")
	}
	os.Unsetenv(power.WakeEnv)

	catalog, err := logic.NewCatalog(cfg.Channels())
	if err != nil {
		return err
	}

	// Initialize MQTT. The session opens on the first press.
	session := mqtt.NewRealPublisher(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		DeviceID:       cfg.DeviceID,
		QoS:            cfg.MQTT.QoS,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
		PublishTimeout: cfg.MQTT.PublishTimeout,
	}, log)
	defer session.Close()

	link := netlink.NewNMCLILink(cfg.Wifi.SSID, cfg.Wifi.Password, cfg.Wifi.Interface, cfg.Wifi.CommandTimeout, netlink.ExecRunner, log)
	clk := clock.NewNTPClock(cfg.Clock.Server, cfg.Clock.Timeout)
	publisher := telemetry.NewPublisher(telemetry.Config{
		LinkAttempts:  cfg.Wifi.Attempts,
		LinkInterval:  cfg.Wifi.Interval,
		ClockAttempts: cfg.Clock.Attempts,
		ClockInterval: cfg.Clock.Interval,
		ValidAfter:    cfg.Clock.ValidAfter,
		Location:      loc,
		TimezoneLabel: cfg.Clock.Timezone,
		LinkBudget:    telemetry.StageBudget(cfg.Wifi.Attempts, cfg.Wifi.Interval, cfg.Wifi.CommandTimeout),
		ClockBudget:   telemetry.StageBudget(cfg.Clock.Attempts, cfg.Clock.Interval, cfg.Clock.Timeout),
	}, link, clk, session, catalog, log)

	scanner := logic.NewScanner(bank, cfg.Timing.Settle, time.Sleep, time.Now)
	ctrl := logic.NewController(logic.ControllerConfig{
		IndicatorDuration: cfg.Timing.Indicator,
		InactivityBudget:  cfg.Timing.Inactivity,
		Capabilities: logic.Capabilities{
			Sleep:     cfg.Capabilities.Sleep,
			Telemetry: cfg.Capabilities.Telemetry,
		},
	}, scanner, catalog, bank, publisher)

	tracker := status.NewTracker(time.Now(), status.Config{
		DeviceID:     cfg.DeviceID,
		PollMs:       cfg.Timing.Poll.Milliseconds(),
		SettleMs:     cfg.Timing.Settle.Milliseconds(),
		IndicatorMs:  cfg.Timing.Indicator.Milliseconds(),
		InactivityMs: cfg.Timing.Inactivity.Milliseconds(),
		Sleep:        cfg.Capabilities.Sleep,
		Telemetry:    cfg.Capabilities.Telemetry,
		Broker:       cfg.MQTT.Broker,
		HTTPPort:     opts.httpAddr,
		Timezone:     cfg.Clock.Timezone,
	})
	tracker.SetWake(wake.Cause)
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	var srv *web.Server
	if opts.httpAddr != "" {
		srv = web.New(opts.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		log.Info().Str("addr", opts.httpAddr).Msg("http status server listening")
	}

	// Lines must be free before the sleeper arms them for wake.
	release := func() error {
		var errs []error
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			errs = append(errs, srv.Shutdown(ctx))
			cancel()
		}
		errs = append(errs, bank.Close())
		return errors.Join(errs...)
	}
	defer func() {
		if srv != nil {
			srv.Shutdown(context.Background())
		}
	}()

	wait := func(ctx context.Context, lines []int) (int, error) {
		return gpio.WaitForActive(ctx, cfg.Chip, lines)
	}
	sleeper := power.NewExecSleeper(store, catalog.InputLines(), wait, log)

	switch wake.Cause {
	case logic.WakeExternal:
		log.Info().Bool("active_period", wake.State.ActivePeriod).Int8("last_button", wake.State.LastButton).Msg("woken by button")
	default:
		log.Info().Msg("cold start")
	}
	log.Info().
		Dur("indicator", cfg.Timing.Indicator).
		Dur("inactivity", cfg.Timing.Inactivity).
		Bool("sleep", cfg.Capabilities.Sleep).
		Bool("telemetry", cfg.Capabilities.Telemetry).
		Str("broker", cfg.MQTT.Broker).
		Msg("started")

	ctx := context.Background()
	logStep(log, ctrl.Start(ctx, wake, time.Now()))

	ticker := time.NewTicker(cfg.Timing.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctx, ctrl, sleeper, session, session, tracker, release, log, time.Now, ticker.C, sigCh)
}

func runLoop(ctx context.Context, ctrl *logic.Controller, sleeper power.Sleeper, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, release func() error, log zerolog.Logger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	updateTracker(ctrl, mqttStatus, tracker)

	for {
		select {
		case s := <-sig:
			log.Info().Str("signal", s.String()).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			publishSystem(ctrl, publisher, mqttStatus, tracker, log, now, "SHUTDOWN", signalName)
			return nil

		case <-tick:
			res := ctrl.Tick(ctx, now())
			logStep(log, res)
			updateTracker(ctrl, mqttStatus, tracker)

			if !res.Sleep {
				continue
			}

			reason := "IDLE"
			if res.ActivePeriodEnd {
				reason = "INACTIVITY"
			}
			publishSystem(ctrl, publisher, mqttStatus, tracker, log, now, "SLEEP", reason)
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("close mqtt session")
			}
			if release != nil {
				if err := release(); err != nil {
					log.Warn().Err(err).Msg("release resources")
				}
			}

			log.Info().Str("reason", reason).Msg("entering sleep")
			return sleepUntilWake(ctx, ctrl, sleeper, log, sig)
		}
	}
}

// sleepUntilWake parks the process in the sleeper. A signal while parked
// abandons the wait and exits cleanly, leaving the retained state on disk.
func sleepUntilWake(ctx context.Context, ctrl *logic.Controller, sleeper power.Sleeper, log zerolog.Logger, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case s := <-sig:
			log.Info().Str("signal", s.String()).Msg("shutting down during sleep")
			cancel()
		case <-ctx.Done():
		}
	}()

	err := sleeper.Sleep(ctx, ctrl.Device())
	if err != nil && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sleep: %w", err)
	}
	return nil
}

// publishSystem sends a retained lifecycle event when a session is already
// open. It never opens one: the link is normally down outside a publish.
func publishSystem(ctrl *logic.Controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, log zerolog.Logger, now func() time.Time, event, reason string) {
	if mqttStatus == nil || !mqttStatus.IsConnected() {
		log.Debug().Str("event", event).Msg("no mqtt session, system event not sent")
		return
	}

	sys := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if tracker != nil {
		updateTracker(ctrl, mqttStatus, tracker)
		sys.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), event, reason)
	}
	if err := publisher.PublishSystem(sys); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Info().Str("event", event).Msg("published system event")
}

func updateTracker(ctrl *logic.Controller, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker) {
	if tracker == nil {
		return
	}
	ch, lit := ctrl.Indicator()
	tracker.Update(ctrl.Phase(), ctrl.Device(), ch, lit, ctrl.Counts())
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

func logStep(log zerolog.Logger, res logic.StepResult) {
	if res.Press != nil {
		log.Info().Int("button", res.Press.Channel).Str("feedback", res.Label).Msg("button pressed")
	}
	if p := res.Publish; p != nil {
		ev := log.Info()
		if p.Err != nil {
			ev = log.Warn().Err(p.Err)
		}
		ev.Str("outcome", string(p.Outcome)).Bool("clock_synced", p.ClockSynced).Msg("publish finished")
	}
	if res.IndicatorCleared {
		log.Debug().Msg("indicator cleared")
	}
	if res.IndicatorErr != nil {
		log.Warn().Err(res.IndicatorErr).Msg("indicator write failed")
	}
	if res.ActivePeriodEnd {
		log.Info().Msg("active period ended")
	}
}

// printedState is the --print-state output.
type printedState struct {
	State    logic.DeviceState `json:"state"`
	Retained bool              `json:"retained"`
	Inputs   []bool            `json:"inputs"` // true = pressed
}

func printState(w io.Writer, store state.Store, lines logic.LineReader) error {
	st, found, err := store.Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	out := printedState{State: st, Retained: found, Inputs: make([]bool, lines.Len())}
	for i := range out.Inputs {
		active, err := lines.Active(i)
		if err != nil {
			return fmt.Errorf("read input %d: %w", i, err)
		}
		out.Inputs[i] = active
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
