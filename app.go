package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voicebar/bootstrap"
	"voicebar/config"
	"voicebar/macos"
	"voicebar/permission"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Frontend event names.
const (
	eventSnapshot  = "permissions:snapshot"
	eventMissing   = "permissions:missing"
	eventListening = "listening_changed"
	eventError     = "error"
)

// ErrPermissionsMissing is returned when listening is requested while a
// critical permission is not granted.
var ErrPermissionsMissing = errors.New("critical permissions missing")

// wailsEmitter bridges permission lifecycle events to the frontend.
type wailsEmitter struct{ ctx context.Context }

func (w wailsEmitter) Emit(eventName string, data any) {
	runtime.EventsEmit(w.ctx, eventName, data)
}

// wailsOpener opens System Settings through the Wails runtime.
type wailsOpener struct {
	ctx     context.Context
	version string
}

func (w wailsOpener) OpenSettings(ctx context.Context, kind permission.Kind) error {
	runtime.BrowserOpenURL(w.ctx, macos.SettingsURL(kind, w.version))
	return nil
}

// PermissionItem is one row of PermissionStatusView.
type PermissionItem struct {
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	Granted  bool   `json:"granted"`
	Critical bool   `json:"critical"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
}

// PermissionStatusView is what the frontend renders.
type PermissionStatusView struct {
	CriticalGranted bool             `json:"criticalGranted"`
	Missing         []string         `json:"missing"`
	Items           []PermissionItem `json:"items"`
	TakenAt         string           `json:"takenAt"`
	Bypassed        bool             `json:"bypassed"`
}

func newStatusView(s *permission.Snapshot) PermissionStatusView {
	critical := make(map[permission.Kind]bool)
	for _, k := range s.Critical() {
		critical[k] = true
	}
	view := PermissionStatusView{
		CriticalGranted: s.CriticalGranted(),
		Missing:         []string{},
		TakenAt:         s.TakenAt().Format(time.RFC3339),
		Bypassed:        s.Bypassed(),
	}
	for _, k := range s.Missing() {
		view.Missing = append(view.Missing, string(k))
	}
	for _, r := range s.Results() {
		item := PermissionItem{
			Kind:     string(r.Permission()),
			Status:   string(r.Status()),
			Granted:  r.Success(),
			Critical: critical[r.Permission()],
			Message:  r.Message(),
		}
		if r.Err() != nil {
			item.Error = r.Err().Error()
		}
		view.Items = append(view.Items, item)
	}
	return view
}

type App struct {
	ctx       context.Context
	cfg       *config.Config
	logger    *slog.Logger
	emitter   permission.EventEmitter
	perms     *bootstrap.Subsystem
	mcpServer *PermissionStatusServer

	mu           sync.Mutex
	listening    bool
	mcpServerURL string
}

func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	emitter := wailsEmitter{ctx: ctx}
	opener := wailsOpener{ctx: ctx, version: macos.ProductVersion()}
	if err := a.initPermissions(emitter, opener, nil); err != nil {
		a.logger.Error("failed to initialize permissions", "error", err)
		runtime.EventsEmit(ctx, eventError, err.Error())
		return
	}
	if a.cfg.MCP.Enabled {
		a.startMCPServer()
	}
	a.perms.Gate.RefreshAsync(ctx, true, a.publishSnapshot)
}

// startMCPServer exposes the permission status tool to local agents.
func (a *App) startMCPServer() {
	a.mcpServer = NewPermissionStatusServer(a.perms.Gate)
	url, err := a.mcpServer.Start()
	if err != nil {
		a.logger.Error("failed to start MCP server", "error", err)
		return
	}
	a.setMCPServerURL(url)
	a.logger.Info("MCP permission status server listening", "url", url)
}

// initPermissions assembles the permission subsystem. checkers is nil
// outside tests.
func (a *App) initPermissions(emitter permission.EventEmitter, opener permission.SettingsOpener, checkers []permission.Checker) error {
	perms, err := bootstrap.Build(a.cfg, bootstrap.Options{
		Emitter:  emitter,
		Opener:   opener,
		Logger:   a.logger,
		Checkers: checkers,
	})
	if err != nil {
		return fmt.Errorf("build permissions: %w", err)
	}
	a.emitter, a.perms = emitter, perms
	return nil
}

// publishSnapshot forwards a completed evaluation to the frontend.
func (a *App) publishSnapshot(snap *permission.Snapshot, err error) {
	if err != nil {
		a.logger.Warn("permission refresh did not complete", "error", err)
		return
	}
	a.emitter.Emit(eventSnapshot, newStatusView(snap))
	if !snap.CriticalGranted() {
		a.emitter.Emit(eventMissing, newStatusView(snap).Missing)
		a.stopListeningIfUngranted(snap)
	}
}

// GetMCPServerURL returns the SSE endpoint of the permission status tool,
// or "" when the server is disabled or failed to start.
func (a *App) GetMCPServerURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mcpServerURL
}

func (a *App) setMCPServerURL(url string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mcpServerURL = url
}

// GetPermissionStatus returns the last evaluation without prompting.
func (a *App) GetPermissionStatus() (PermissionStatusView, error) {
	if a.perms == nil {
		return PermissionStatusView{}, permission.ErrNotInitialized
	}
	snap, err := a.perms.Gate.Status()
	if err != nil {
		return PermissionStatusView{}, err
	}
	return newStatusView(snap), nil
}

// RefreshPermissions evaluates again, from cache unless force is set.
func (a *App) RefreshPermissions(force bool) (PermissionStatusView, error) {
	if a.perms == nil {
		return PermissionStatusView{}, permission.ErrNotInitialized
	}
	snap, err := a.perms.Gate.Refresh(a.context(), force)
	if err != nil {
		return PermissionStatusView{}, err
	}
	a.publishSnapshot(snap, nil)
	return newStatusView(snap), nil
}

// OpenPermissionSettings opens the System Settings pane for kind.
func (a *App) OpenPermissionSettings(kind string) error {
	k, err := permission.ParseKind(kind)
	if err != nil {
		return err
	}
	runtime.BrowserOpenURL(a.ctx, macos.SettingsURL(k, macos.ProductVersion()))
	return nil
}

// StartListening enables audio capture once every critical permission is
// granted.
func (a *App) StartListening() error {
	if a.perms == nil {
		return permission.ErrNotInitialized
	}
	snap, err := a.perms.Gate.Refresh(a.context(), false)
	if err != nil {
		return err
	}
	if !snap.CriticalGranted() {
		return fmt.Errorf("%w: %s", ErrPermissionsMissing, joinKinds(snap.Missing()))
	}
	a.setListening(true)
	return nil
}

func (a *App) StopListening() {
	a.setListening(false)
}

func (a *App) IsListening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

func (a *App) setListening(on bool) {
	a.mu.Lock()
	changed := a.listening != on
	a.listening = on
	a.mu.Unlock()
	if changed && a.emitter != nil {
		a.emitter.Emit(eventListening, on)
	}
}

func (a *App) stopListeningIfUngranted(snap *permission.Snapshot) {
	if a.IsListening() {
		a.logger.Warn("critical permission lost, stopping capture", "missing", snap.Missing())
		a.setListening(false)
	}
}

func (a *App) context() context.Context {
	if a.ctx != nil {
		return a.ctx
	}
	return context.Background()
}

func (a *App) shutdown(ctx context.Context) {
	if a.mcpServer != nil {
		a.mcpServer.Stop()
	}
	if a.perms != nil {
		if err := a.perms.Close(); err != nil {
			a.logger.Warn("failed to close permissions", "error", err)
		}
	}
}

func joinKinds(kinds []permission.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
