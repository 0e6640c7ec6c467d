package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/Station-Manager/elm327/internal/config"
	"github.com/Station-Manager/elm327/internal/store"
	"github.com/Station-Manager/elm327/internal/tui"
	"github.com/Station-Manager/elm327/pid"
	"github.com/Station-Manager/elm327/session"
)

const defaultStoreTimeout = 5 * time.Second

// recording brackets each polling run with a store recording.
type recording struct {
	*session.Controller
	rec    *store.Recorder
	logger interface{ Warn(string, ...any) }
}

func (r recording) Start() error {
	if r.rec != nil && r.rec.ID() == "" {
		dev, _ := r.Device()
		ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
		if err := r.rec.Start(ctx, dev.Name, dev.Address); err != nil {
			r.logger.Warn("Starting recording failed", "error", err)
		}
		cancel()
	}
	err := r.Controller.Start()
	if err != nil {
		r.endRecording()
	}
	return err
}

func (r recording) Stop() error {
	err := r.Controller.Stop()
	r.endRecording()
	return err
}

func (r recording) endRecording() {
	if r.rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultStoreTimeout)
	defer cancel()
	if err := r.rec.Stop(ctx); err != nil {
		r.logger.Warn("Ending recording failed", "error", err)
	}
}

func (a *app) controller() recording {
	return recording{Controller: a.ctrl, rec: a.rec, logger: a.logger}
}

func (a *app) runTUI(ctx context.Context) error {
	a.serveMetrics(ctx)
	if err := a.preselect(ctx); err != nil {
		a.logger.Warn("Configured device not chosen", "device", a.cfg.Adapter.Device, "error", err)
	}
	return tui.Run(tui.Options{
		Controller: a.controller(),
		Context:    ctx,
		Health:     a.health,
	}, a.screen)
}

func (a *app) listDevices(ctx context.Context) error {
	devs, err := a.ctrl.PairedDevices(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tPATH")
	for _, d := range devs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Address, d.Path)
	}
	return w.Flush()
}

// connect chooses the configured device and opens the link.
func (a *app) connect(ctx context.Context) error {
	if a.cfg.Adapter.Device == "" {
		return fmt.Errorf("%w (use -device)", session.ErrNoDevice)
	}
	if err := a.preselect(ctx); err != nil {
		return err
	}
	return a.ctrl.Connect(ctx)
}

func (a *app) poll(ctx context.Context, rounds int, asJSON bool) error {
	if err := a.connect(ctx); err != nil {
		return err
	}
	a.serveMetrics(ctx)
	emit := readingPrinter(os.Stdout, asJSON)

	if rounds <= 0 {
		a.board.OnShow = func(_ int, r pid.Reading) { emit(r) }
		ctrl := a.controller()
		if err := ctrl.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		return ctrl.Stop()
	}

	ticker := time.NewTicker(a.cfg.Poll.Interval.D())
	defer ticker.Stop()
	for i := range rounds {
		readings, err := a.ctrl.RunOnce(ctx)
		for _, r := range readings {
			emit(r)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		if i == rounds-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func readingPrinter(w io.Writer, asJSON bool) func(pid.Reading) {
	if asJSON {
		enc := json.NewEncoder(w)
		return func(r pid.Reading) { _ = enc.Encode(r) }
	}
	return func(r pid.Reading) {
		fmt.Fprintf(w, "%s  %-28s %s\n", r.At.Format(time.TimeOnly), r.Name+":", r.Formatted)
	}
}

// exec sends each argument as a command, or reads commands from stdin.
func (a *app) exec(ctx context.Context, cmds []string) error {
	if err := a.connect(ctx); err != nil {
		return err
	}

	if len(cmds) > 0 {
		for _, c := range cmds {
			resp, err := a.ctrl.Exec(ctx, c)
			if err != nil {
				return fmt.Errorf("%s: %w", c, err)
			}
			fmt.Println(resp)
		}
		return nil
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintln(os.Stderr, "Type adapter commands, Ctrl+D to exit.")
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp, err := a.ctrl.Exec(ctx, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(resp)
	}
}

func history(ctx context.Context, cfg *config.Config, args []string) error {
	s, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(args) > 0 {
		readings, err := s.Readings(ctx, args[0])
		if err != nil {
			return err
		}
		emit := readingPrinter(os.Stdout, false)
		for _, r := range readings {
			emit(r)
		}
		return nil
	}

	recs, err := s.Recordings(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDEVICE\tADDRESS\tSTARTED\tENDED")
	for _, r := range recs {
		ended := "-"
		if !r.EndedAt.IsZero() {
			ended = r.EndedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.DeviceName, r.Address,
			r.StartedAt.Local().Format(time.DateTime), ended)
	}
	return w.Flush()
}
