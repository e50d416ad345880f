package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/ArmGo/internal/config"
	"github.com/cjeanneret/ArmGo/internal/debug"
	"github.com/cjeanneret/ArmGo/internal/hw/gpio"
	"github.com/cjeanneret/ArmGo/internal/hw/servo"
	"github.com/cjeanneret/ArmGo/internal/logic/control"
	"github.com/cjeanneret/ArmGo/internal/transport"
	"github.com/cjeanneret/ArmGo/internal/tui"
	"github.com/cjeanneret/ArmGo/internal/web"
)

const defaultWebPort = 8080

// Overrides holds CLI values that replace config entries. Zero values mean "use config".
type Overrides struct {
	Policy     string
	MaxStepDeg int
	Transport  string
	DebugLevel int // -1 = use config
	Mock       bool
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: defaultWebPort}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	defaultCfg := filepath.Join("configs", "default.yaml")
	cfgPath := flag.String("config", defaultCfg, "path to config file")
	showTUI := flag.Bool("tui", false, "show the live terminal monitor")
	mock := flag.Bool("mock", false, "use the mock GPIO servo driver (no hardware)")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	policy := flag.String("policy", "", "override interpolation policy (fixed|proportional)")
	maxStep := flag.Int("max_step_deg", 0, "override interpolation max step in degrees (1-180)")
	transportType := flag.String("transport", "", "override command transport (serial|websocket|none)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	overrides := Overrides{
		Policy:     *policy,
		MaxStepDeg: *maxStep,
		Transport:  *transportType,
		DebugLevel: *debugLevel,
		Mock:       *mock,
	}
	if err := validateCLIOverrides(overrides); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Load configuration
	cfg, err := loadConfig(*cfgPath, flagWasSet("config"))
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	applyOverrides(cfg, overrides)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.Transport.Type == config.TransportWebsocket && webPort.port() == 0 {
		webPort.val = defaultWebPort
	}

	// Diagnostics go to stdout, or into the monitor when it owns the terminal.
	broadcaster := web.NewStatusBroadcaster()
	if *showTUI {
		debug.SetOutput(web.BroadcastWriter(broadcaster))
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Summary("ArmGo")
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Servo driver", cfg.Servo.Driver)
	debug.Value("Transport", cfg.Transport.Type)
	debug.Value("Interpolation", fmt.Sprintf("%s (max %d deg, scale %d)",
		cfg.Interpolation.Policy, cfg.Interpolation.MaxStepDeg, cfg.Interpolation.ScaleFactor))
	debug.Value("Tick", cfg.TickInterval())
	debug.Value("Buffer size", cfg.Loop.BufferSize)

	debug.Step(1, "Initializing servo driver")
	driver, err := newServoDriver(cfg)
	if err != nil {
		log.Fatalf("init servo driver failed: %v", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Printf("closing servo driver failed: %v", err)
		}
	}()

	debug.Step(2, "Opening command transport")
	queue := transport.NewQueue(cfg.Transport.QueueSize)
	link := openTransportOrNone(cfg, queue)
	defer link.Close()

	debug.Step(3, "Creating controller")
	ctrl, err := control.New(cfg, driver)
	if err != nil {
		log.Fatalf("create controller failed: %v", err)
	}
	ctrl.AddSink(broadcaster)
	if !*showTUI {
		// With the monitor, debug output already reaches the broadcaster.
		ctrl.AddSink(control.LogSink{})
	}
	loop := control.NewLoop(ctrl, queue, clock.New(), cfg.TickInterval())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})

	if port := webPort.port(); port > 0 {
		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, ctrl.Snapshot, cfg, queue)
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
	}

	if *showTUI {
		logs, unsub := broadcaster.Subscribe()
		feed := tui.Feed{States: tui.Subscribe(ctrl), Logs: logs}
		g.Go(func() error {
			defer unsub()
			err := tui.Run(gctx, feed)
			// Quitting the monitor stops the controller.
			cancel()
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("armgo: %v", err)
	}
	debug.Info("Shutdown complete")
}

// loadConfig reads path. When the default path was not given explicitly
// and does not exist, the built-in profile is used.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	log.Printf("config %s not found, using built-in defaults", path)
	cfg = config.Default()
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// validateCLIOverrides checks that non-zero CLI overrides are valid.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(o Overrides) error {
	switch o.Policy {
	case "", config.PolicyFixed, config.PolicyProportional:
	default:
		return fmt.Errorf("policy must be %q or %q, got %q", config.PolicyFixed, config.PolicyProportional, o.Policy)
	}
	if o.MaxStepDeg < 0 || o.MaxStepDeg > 180 {
		return fmt.Errorf("max_step_deg must be between 1 and 180, got %d", o.MaxStepDeg)
	}
	switch o.Transport {
	case "", config.TransportSerial, config.TransportWebsocket, config.TransportNone:
	default:
		return fmt.Errorf("unsupported transport: %q", o.Transport)
	}
	if o.DebugLevel < -1 || o.DebugLevel > debug.LevelTrace {
		return fmt.Errorf("debug must be between 0 and %d, got %d", debug.LevelTrace, o.DebugLevel)
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only non-zero override values are applied.
func applyOverrides(cfg *config.Config, o Overrides) {
	if o.Policy != "" {
		cfg.Interpolation.Policy = o.Policy
	}
	if o.MaxStepDeg > 0 {
		// The claw keeps its own step only if it was set apart from the joints.
		if cfg.Claw.MaxStepDeg == cfg.Interpolation.MaxStepDeg {
			cfg.Claw.MaxStepDeg = o.MaxStepDeg
		}
		cfg.Interpolation.MaxStepDeg = o.MaxStepDeg
	}
	if o.Transport != "" {
		cfg.Transport.Type = o.Transport
	}
	if o.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.DebugLevel
	}
	if o.Mock {
		cfg.Defaults.MockGPIO = true
		cfg.Servo.Driver = config.DriverGPIO
	}
}

// servoOutputs maps every actuator channel to its configured output.
func servoOutputs(cfg *config.Config) map[servo.Channel]servo.Output {
	outputs := make(map[servo.Channel]servo.Output, servo.ChannelCount)
	for i, ch := range servo.Joints {
		j := cfg.Joints[i]
		outputs[ch] = servo.Output{Address: j.Channel, MinPulseUs: j.MinPulseUs, MaxPulseUs: j.MaxPulseUs}
	}
	outputs[servo.Claw] = servo.Output{
		Address:    cfg.Claw.Channel,
		MinPulseUs: cfg.Claw.MinPulseUs,
		MaxPulseUs: cfg.Claw.MaxPulseUs,
	}
	return outputs
}

// newServoDriver selects a servo driver implementation based on configuration.
func newServoDriver(cfg *config.Config) (servo.Driver, error) {
	outputs := servoOutputs(cfg)
	switch cfg.Servo.Driver {
	case config.DriverGPIO:
		g, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
		if err != nil {
			return nil, err
		}
		d, err := servo.NewPWMDriver(g, cfg.Servo.PeriodHz, outputs)
		if err != nil {
			g.Close()
			return nil, err
		}
		return d, nil
	case config.DriverPCA9685:
		d, err := servo.OpenPCA9685(cfg.Servo.I2CBus, cfg.Servo.I2CAddr, cfg.Servo.PeriodHz, outputs)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DriverFeetech:
		ids := make(map[servo.Channel]int, len(outputs))
		for ch, out := range outputs {
			ids[ch] = out.Address
		}
		d, err := servo.NewFeetechDriver(cfg.Servo.FeetechPort, cfg.Servo.FeetechBaud, ids)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported servo driver: %s", cfg.Servo.Driver)
	}
}

// openTransport starts the configured frame producer feeding queue.
// The websocket transport is served by the web server on the same queue.
// openTransportOrNone opens the configured transport. On failure the arm
// still runs, holding its last-known frame with no command source.
func openTransportOrNone(cfg *config.Config, queue *transport.Queue) io.Closer {
	link, err := openTransport(cfg, queue)
	if err != nil {
		log.Printf("open transport failed, holding last frame: %v", err)
		return transport.None{}
	}
	return link
}

func openTransport(cfg *config.Config, queue *transport.Queue) (io.Closer, error) {
	switch cfg.Transport.Type {
	case config.TransportSerial:
		r, err := transport.OpenSerial(cfg.Transport.SerialPort, cfg.Transport.SerialBaud, queue)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.TransportWebsocket, config.TransportNone:
		return transport.None{}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Transport.Type)
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
