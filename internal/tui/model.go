// Package tui is the terminal front end for a polling session.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Station-Manager/elm327"
	"github.com/Station-Manager/elm327/params"
	"github.com/Station-Manager/elm327/session"
)

// NoticeBluetoothRequired is shown when the user declines to enable Bluetooth.
const NoticeBluetoothRequired = "Application requires Bluetooth enabled"

// NoticeParamsNotSaved is shown when the picker is left without applying.
const NoticeParamsNotSaved = "Preferred parameters not saved correctly"

const (
	defaultNoticeTTL = 3 * time.Second
	defaultOpTimeout = 30 * time.Second
)

// Controller is the part of session.Controller the screens drive.
type Controller interface {
	PairedDevices(ctx context.Context) ([]session.Device, error)
	EnableBluetooth(ctx context.Context) error
	ChooseDevice(devs []session.Device, index int) error
	Connect(ctx context.Context) error
	Start() error
	Stop() error
	SetParameters(names []string) error
	Selection() *params.Selection
	Connected() bool
	Polling() bool
}

type Options struct {
	Controller Controller
	// Context bounds every operation started from the UI.
	Context context.Context
	// Health, if set, is called after each successful connect.
	Health    func() <-chan elm327.MetricsSnapshot
	Title     string
	NoticeTTL time.Duration
	OpTimeout time.Duration
}

type screen int

const (
	screenMain screen = iota
	screenDevices
	screenParams
	screenEnable
)

type (
	devicesMsg struct {
		devs []session.Device
		err  error
	}
	enabledMsg struct{ err error }
	opDoneMsg  struct {
		op  string
		err error
	}
	noticeExpiredMsg int
	healthMsg        elm327.MetricsSnapshot
	healthClosedMsg  struct{}
)

const (
	opChoose  = "choose"
	opConnect = "connect"
	opStart   = "start"
	opStop    = "stop"
	opParams  = "params"
)

type Model struct {
	ctrl      Controller
	ctx       context.Context
	health    func() <-chan elm327.MetricsSnapshot
	healthCh  <-chan elm327.MetricsSnapshot
	title     string
	noticeTTL time.Duration
	opTimeout time.Duration

	keys     keyMap
	help     help.Model
	screen   screen
	busy     string
	width    int
	quitting bool

	info      string
	labels    []string
	results   []string
	notice    string
	noticeSeq int
	snapshot  *elm327.MetricsSnapshot

	devices []session.Device
	cursor  int
	picked  *params.Selection
}

func NewModel(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	m := Model{
		ctrl:      opts.Controller,
		ctx:       ctx,
		health:    opts.Health,
		title:     opts.Title,
		noticeTTL: opts.NoticeTTL,
		opTimeout: opts.OpTimeout,
		keys:      newKeyMap(),
		help:      help.New(),
		labels:    opts.Controller.Selection().Labels(),
		results:   make([]string, params.MaxSelected),
	}
	if m.title == "" {
		m.title = "OBD-II"
	}
	if m.noticeTTL <= 0 {
		m.noticeTTL = defaultNoticeTTL
	}
	if m.opTimeout <= 0 {
		m.opTimeout = defaultOpTimeout
	}
	return m
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case infoMsg:
		m.info = string(msg)
		return m, nil
	case labelsMsg:
		m.labels = []string(msg)
		return m, nil
	case showMsg:
		if msg.slot >= 0 && msg.slot < len(m.results) {
			m.results[msg.slot] = msg.reading.Calculated
		}
		return m, nil
	case clearMsg:
		m.results = make([]string, params.MaxSelected)
		return m, nil
	case noticeMsg:
		return m.setNotice(string(msg))
	case noticeExpiredMsg:
		if int(msg) == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case devicesMsg:
		m.busy = ""
		return m.onDevices(msg)
	case enabledMsg:
		m.busy = ""
		if msg.err != nil {
			m.screen = screenMain
			return m, nil
		}
		return m.listDevices()
	case opDoneMsg:
		m.busy = ""
		return m.onOpDone(msg)
	case healthMsg:
		s := elm327.MetricsSnapshot(msg)
		m.snapshot = &s
		return m, m.waitHealth()
	case healthClosedMsg:
		m.healthCh = nil
		return m, nil

	case tea.KeyMsg:
		return m.onKey(msg)
	}
	return m, nil
}

func (m Model) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && (m.screen == screenMain || msg.String() == "ctrl+c") {
		m.quitting = true
		return m, tea.Quit
	}
	switch m.screen {
	case screenDevices:
		return m.onDevicesKey(msg)
	case screenParams:
		return m.onParamsKey(msg)
	case screenEnable:
		return m.onEnableKey(msg)
	}

	if m.busy != "" {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Devices):
		return m.listDevices()
	case key.Matches(msg, m.keys.Connect):
		m.busy = "Connecting..."
		return m, m.op(opConnect, func(ctx context.Context) error { return m.ctrl.Connect(ctx) })
	case key.Matches(msg, m.keys.Start):
		return m, m.op(opStart, func(context.Context) error { return m.ctrl.Start() })
	case key.Matches(msg, m.keys.Stop):
		return m, m.op(opStop, func(context.Context) error { return m.ctrl.Stop() })
	case key.Matches(msg, m.keys.Params):
		m.picked = params.FromNames(m.ctrl.Selection().Names())
		m.cursor = 0
		m.screen = screenParams
	case key.Matches(msg, m.keys.ShowHelp):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) onDevicesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Select):
		devs, idx := m.devices, m.cursor
		m.screen = screenMain
		return m, m.op(opChoose, func(context.Context) error { return m.ctrl.ChooseDevice(devs, idx) })
	case key.Matches(msg, m.keys.Back):
		m.screen = screenMain
	}
	return m, nil
}

func (m Model) onParamsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	names := params.Names()
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(names)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Toggle):
		if _, err := m.picked.Toggle(names[m.cursor]); err != nil {
			return m.setNotice(err.Error())
		}
	case key.Matches(msg, m.keys.Select):
		chosen := m.picked.Names()
		m.screen = screenMain
		m.picked = nil
		return m, m.op(opParams, func(context.Context) error { return m.ctrl.SetParameters(chosen) })
	case key.Matches(msg, m.keys.Back):
		m.screen = screenMain
		m.picked = nil
		return m.setNotice(NoticeParamsNotSaved)
	}
	return m, nil
}

func (m Model) onEnableKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Yes):
		m.busy = "Enabling Bluetooth..."
		ctrl, ctx, timeout := m.ctrl, m.ctx, m.opTimeout
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return enabledMsg{err: ctrl.EnableBluetooth(ctx)}
		}
	case key.Matches(msg, m.keys.No):
		m.screen = screenMain
		return m.setNotice(NoticeBluetoothRequired)
	}
	return m, nil
}

func (m Model) listDevices() (tea.Model, tea.Cmd) {
	m.busy = "Looking for paired devices..."
	ctrl, ctx, timeout := m.ctrl, m.ctx, m.opTimeout
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		devs, err := ctrl.PairedDevices(ctx)
		return devicesMsg{devs: devs, err: err}
	}
}

func (m Model) onDevices(msg devicesMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.err, session.ErrBluetoothOff):
		m.screen = screenEnable
	case msg.err != nil:
		m.screen = screenMain
	default:
		m.devices = msg.devs
		m.cursor = 0
		m.screen = screenDevices
	}
	return m, nil
}

func (m Model) onOpDone(msg opDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		// The controller reports its own failures; these are refusals it
		// returns without a notice.
		if errors.Is(msg.err, session.ErrNotConnected) || errors.Is(msg.err, session.ErrConnected) {
			return m.setNotice(msg.err.Error())
		}
		return m, nil
	}
	if msg.op == opConnect && m.health != nil {
		m.healthCh = m.health()
		m.snapshot = nil
		return m, m.waitHealth()
	}
	return m, nil
}

func (m Model) op(name string, fn func(ctx context.Context) error) tea.Cmd {
	ctx, timeout := m.ctx, m.opTimeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return opDoneMsg{op: name, err: fn(ctx)}
	}
}

func (m Model) waitHealth() tea.Cmd {
	ch := m.healthCh
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return healthClosedMsg{}
		}
		return healthMsg(s)
	}
}

func (m Model) setNotice(text string) (tea.Model, tea.Cmd) {
	m.noticeSeq++
	m.notice = text
	seq := m.noticeSeq
	return m, tea.Tick(m.noticeTTL, func(time.Time) tea.Msg { return noticeExpiredMsg(seq) })
}

// Run starts the program and blocks until the user quits.
func Run(opts Options, display *Display) error {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	p := tea.NewProgram(NewModel(opts), tea.WithAltScreen(), tea.WithContext(opts.Context))
	display.Attach(p)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
