package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Station-Manager/elm327"
	"github.com/Station-Manager/elm327/bluez"
	"github.com/Station-Manager/elm327/internal/config"
	"github.com/Station-Manager/elm327/internal/logging"
	"github.com/Station-Manager/elm327/internal/metrics"
	"github.com/Station-Manager/elm327/internal/store"
	"github.com/Station-Manager/elm327/internal/tui"
	"github.com/Station-Manager/elm327/params"
	"github.com/Station-Manager/elm327/session"
)

const usage = `usage: obdcli [flags] [command]

commands:
  tui                 interactive screen (default)
  devices             list paired devices or serial ports
  poll                poll the selected parameters and print readings
  exec [CMD...]       send raw commands; reads stdin when none are given
  history [ID]        list recordings, or the readings of one

flags:
`

type options struct {
	configPath string
	device     string
	transport  string
	baud       int
	params     string
	count      int
	json       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "config file (default $"+config.EnvPath+")")
	flag.StringVar(&opts.device, "device", "", "Bluetooth address, name or serial device path")
	flag.StringVar(&opts.transport, "transport", "", "bluetooth or serial")
	flag.IntVar(&opts.baud, "baud", 0, "serial baud rate")
	flag.StringVar(&opts.params, "params", "", "comma separated parameter names")
	flag.IntVar(&opts.count, "n", 0, "poll: number of rounds, 0 polls until interrupted")
	flag.BoolVar(&opts.json, "json", false, "poll: print readings as JSON lines")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, flag.Args()); err != nil {
		stop()
		log.Fatal(err)
	}
}

func run(ctx context.Context, opts options, args []string) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}

	command := "tui"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	if command == "history" {
		return history(ctx, cfg, args)
	}

	a, err := newApp(cfg, command != "tui")
	if err != nil {
		return err
	}
	defer a.close()

	switch command {
	case "tui":
		return a.runTUI(ctx)
	case "devices":
		return a.listDevices(ctx)
	case "poll":
		return a.poll(ctx, opts.count, opts.json)
	case "exec":
		return a.exec(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// apply lays the command line over the loaded file.
func (o options) apply(cfg *config.Config) error {
	if o.device != "" {
		cfg.Adapter.Device = o.device
	}
	if o.transport != "" {
		cfg.Adapter.Transport = o.transport
	}
	if o.baud != 0 {
		cfg.Adapter.BaudRate = o.baud
	}
	if o.params != "" {
		names := strings.Split(o.params, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		cfg.Poll.Parameters = names
	}
	return cfg.Validate()
}

// app is one wired session: logger, dialer, controller and the optional
// metrics endpoint and recording store.
type app struct {
	cfg     *config.Config
	logger  *logging.Service
	manager *bluez.Manager
	ctrl    *session.Controller
	board   *session.Board
	screen  *tui.Display
	metrics *metrics.Recorder
	store   *store.Store
	rec     *store.Recorder
}

func newApp(cfg *config.Config, console bool) (*app, error) {
	logger, err := logging.New(cfg.LoggingConfig(console))
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	var dialer session.Dialer
	switch cfg.Adapter.Transport {
	case config.TransportSerial:
		dialer = &session.SerialDialer{Config: cfg.Link(), Logger: logger}
	default:
		a.manager = bluez.New(logger)
		dialer = &session.BluezDialer{Manager: a.manager, Link: cfg.Link(), Logger: logger}
	}

	displays := []session.Display{}
	if console {
		a.board = &session.Board{OnNotify: func(msg string) { fmt.Fprintln(os.Stderr, msg) }}
		displays = append(displays, a.board)
	} else {
		a.screen = tui.NewDisplay()
		displays = append(displays, a.screen)
	}

	var instr session.Instrumentation
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
		instr = a.metrics
		displays = append(displays, a.metrics.Display())
	}

	if cfg.Store.Enabled {
		a.store, err = store.Open(cfg.Store.Path)
		if err != nil {
			_ = a.close()
			return nil, err
		}
		a.rec = a.store.Recorder(logger)
		displays = append(displays, a.rec)
	}

	a.ctrl, err = session.New(session.Options{
		Dialer:          dialer,
		Display:         session.Tee(displays...),
		Logger:          logger,
		Selection:       params.FromNames(cfg.Poll.Parameters),
		Units:           cfg.Units(),
		Protocol:        cfg.Protocol(),
		ResetOnConnect:  cfg.Adapter.ResetOnConnect,
		InitialDelay:    cfg.Poll.InitialDelay.D(),
		Interval:        cfg.Poll.Interval.D(),
		CommandTimeout:  cfg.Poll.CommandTimeout.D(),
		Instrumentation: instr,
	})
	if err != nil {
		_ = a.close()
		return nil, err
	}

	if a.metrics != nil {
		a.metrics.WatchLink(a.linkMetrics)
	}
	return a, nil
}

func (a *app) port() *elm327.Port {
	port, _ := a.ctrl.Link().(*elm327.Port)
	return port
}

func (a *app) linkMetrics() *elm327.MetricsSnapshot {
	if port := a.port(); port != nil {
		return port.Metrics()
	}
	return nil
}

// health feeds the TUI status line from the open link.
func (a *app) health() <-chan elm327.MetricsSnapshot {
	port := a.port()
	if port == nil || port.Service() == nil {
		return nil
	}
	ch, err := port.Service().StartMetricsBroadcasting(a.cfg.Metrics.BroadcastInterval.D())
	if err != nil {
		a.logger.Warn("Link health unavailable", "error", err)
		return nil
	}
	return ch
}

func (a *app) serveMetrics(ctx context.Context) {
	if a.metrics == nil || a.cfg.Metrics.Listen == "" {
		return
	}
	go func() {
		a.logger.Info("Serving metrics", "listen", a.cfg.Metrics.Listen)
		if err := a.metrics.Serve(ctx, a.cfg.Metrics.Listen); err != nil {
			a.logger.Error("Metrics endpoint failed", "error", err)
		}
	}()
}

// preselect chooses the configured device, if any.
func (a *app) preselect(ctx context.Context) error {
	want := a.cfg.Adapter.Device
	if want == "" {
		return nil
	}
	devs, err := a.ctrl.PairedDevices(ctx)
	if err != nil {
		return err
	}
	for i, d := range devs {
		if strings.EqualFold(d.Address, want) || d.Path == want || d.Name == want {
			return a.ctrl.ChooseDevice(devs, i)
		}
	}
	return fmt.Errorf("%w: %s", session.ErrNoDevice, want)
}

func (a *app) close() error {
	var errs []error
	if a.ctrl != nil {
		errs = append(errs, a.ctrl.Close())
	}
	if a.rec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
		errs = append(errs, a.rec.Stop(ctx))
		cancel()
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.manager != nil {
		errs = append(errs, a.manager.Close())
	}
	errs = append(errs, a.logger.Close())
	return errors.Join(errs...)
}
