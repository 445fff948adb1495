package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/jfmyers9/tapedeck/internal/control"
	"github.com/rivo/tview"
)

const (
	volumeStep = 0.05
	seekStep   = 5 * time.Second
)

// Config holds TUI configuration options
type Config struct {
	RefreshRate    time.Duration // How often to poll the daemon
	MaxRefreshRate time.Duration // Poll interval ceiling while the daemon is unreachable
	CommandTimeout time.Duration // Deadline for a single control request
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate:    500 * time.Millisecond,
		MaxRefreshRate: 8 * time.Second,
		CommandTimeout: 2 * time.Second,
	}
}

// Controller sends requests to the daemon. *control.Client implements it.
type Controller interface {
	Do(ctx context.Context, req control.Request) (*control.StateView, error)
	State(ctx context.Context) (*control.StateView, error)
}

// App is the TUI application for displaying and driving playback
type App struct {
	app        *tview.Application
	nowPlaying *tview.TextView
	progress   *tview.TextView
	queue      *tview.List
	status     *tview.TextView
	help       *tview.TextView

	// Configuration
	config Config

	// Daemon connection
	ctl Controller

	// Mutex protects the last fetched state, shared by the poll goroutine
	// and the key handler running on the tview event loop.
	mu      sync.Mutex
	view    *control.StateView
	connErr error // Last failed poll, cleared by the next successful one
	cmdErr  error // Result of the last command

	// Last-rendered content for change detection
	lastNowPlaying string
	lastProgress   string
	lastStatus     string
	lastQueue      []string
	lastCurrent    int

	// Cached progress bar width to stabilize change detection.
	// Updated only when GetInnerRect returns a positive value.
	lastBarWidth int

	// Context cancel function
	cancelFunc context.CancelFunc
}

// New creates a new TUI application with default config
func New(ctl Controller) *App {
	return NewWithConfig(ctl, DefaultConfig())
}

// NewWithConfig creates a new TUI application with the given config
func NewWithConfig(ctl Controller, cfg Config) *App {
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = 500 * time.Millisecond
	}
	if cfg.MaxRefreshRate < cfg.RefreshRate {
		cfg.MaxRefreshRate = cfg.RefreshRate
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}

	a := &App{
		app:         tview.NewApplication(),
		config:      cfg,
		ctl:         ctl,
		lastCurrent: -1,
	}
	a.setupUI()
	return a
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	// Now playing panel
	a.nowPlaying = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	// Progress bar
	a.progress = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	a.progress.SetBorder(true)

	// Queue, enter jumps to the selected entry
	a.queue = tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)
	a.queue.SetBorder(true).
		SetTitle(" Queue ").
		SetTitleAlign(tview.AlignLeft)
	a.queue.SetSelectedFunc(func(index int, _, _ string, _ rune) {
		a.send(control.Request{Cmd: control.CmdJump, Index: index})
	})

	// Mode, volume and last error
	a.status = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)

	a.help = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]q:quit  space:play/pause  n:next  p:prev  s:stop  m:mode  +/-:volume  ←/→:seek  enter:jump  d:remove[-]")

	// Create layout
	// Top row: now playing
	// Then: progress bar, queue (takes remaining space), status, key help
	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.nowPlaying, 7, 1, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(a.queue, 0, 3, true).
		AddItem(a.status, 1, 1, false).
		AddItem(a.help, 1, 1, false)

	// Handle keyboard input
	a.app.SetInputCapture(a.handleKeyEvent)

	a.app.SetRoot(flex, true).SetFocus(a.queue)
}

// handleKeyEvent processes keyboard input
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	if event.Rune() == 'q' || event.Rune() == 'Q' {
		a.Stop()
		return nil
	}

	a.mu.Lock()
	view := a.view
	a.mu.Unlock()

	req, ok := keyRequest(event, view, a.queue.GetCurrentItem())
	if !ok {
		return event
	}
	a.send(req)
	return nil
}

// keyRequest maps a key press to a control request. selected is the
// highlighted queue entry.
func keyRequest(event *tcell.EventKey, view *control.StateView, selected int) (control.Request, bool) {
	switch event.Key() {
	case tcell.KeyLeft:
		if view == nil {
			return control.Request{}, false
		}
		return control.Request{Cmd: control.CmdSeek, Position: max(view.Position-seekStep, 0)}, true
	case tcell.KeyRight:
		if view == nil {
			return control.Request{}, false
		}
		return control.Request{Cmd: control.CmdSeek, Position: view.Position + seekStep}, true
	}

	switch event.Rune() {
	case ' ':
		return control.Request{Cmd: control.CmdToggle}, true
	case 'n', 'N':
		return control.Request{Cmd: control.CmdNext}, true
	case 'p', 'P':
		return control.Request{Cmd: control.CmdPrevious}, true
	case 's', 'S':
		return control.Request{Cmd: control.CmdStop}, true
	case 'm', 'M':
		if view == nil {
			return control.Request{}, false
		}
		return control.Request{Cmd: control.CmdMode, Mode: view.Mode.Cycle().String()}, true
	case '+', '=':
		if view == nil {
			return control.Request{}, false
		}
		return control.Request{Cmd: control.CmdVolume, Volume: min(view.Volume+volumeStep, 1)}, true
	case '-', '_':
		if view == nil {
			return control.Request{}, false
		}
		return control.Request{Cmd: control.CmdVolume, Volume: max(view.Volume-volumeStep, 0)}, true
	case 'd', 'D':
		if view == nil || selected < 0 || selected >= len(view.Queue) {
			return control.Request{}, false
		}
		return control.Request{Cmd: control.CmdRemove, Index: selected}, true
	}
	return control.Request{}, false
}

// send issues req and shows the resulting state
func (a *App) send(req control.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.CommandTimeout)
	defer cancel()

	view, err := a.ctl.Do(ctx, req)
	a.mu.Lock()
	if view != nil {
		a.view = view
	}
	a.cmdErr = err
	a.mu.Unlock()

	// Redraw from outside the event loop
	go a.refresh()
}

// Run polls the daemon and blocks until the user quits or ctx ends
func (a *App) Run(ctx context.Context) error {
	// Create cancellable context
	ctx, a.cancelFunc = context.WithCancel(ctx)

	// Start update goroutine
	go a.poll(ctx)

	// Run application
	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}

// poll fetches state on a ticker, backing off while the daemon is
// unreachable
func (a *App) poll(ctx context.Context) {
	interval := a.config.RefreshRate
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial fetch
	a.fetch(ctx)
	a.refresh()

	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
			next := a.config.RefreshRate
			if err := a.fetch(ctx); err != nil {
				// Exponential backoff on error
				next = min(interval*2, a.config.MaxRefreshRate)
			}
			if next != interval {
				interval = next
				ticker.Reset(interval)
			}
			a.refresh()
		}
	}
}

func (a *App) fetch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.CommandTimeout)
	defer cancel()

	view, err := a.ctl.State(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.view = nil
		a.connErr = err
		return err
	}
	a.view = view
	a.connErr = nil
	return nil
}

// refresh updates all UI components
func (a *App) refresh() {
	a.app.QueueUpdateDraw(func() {
		a.mu.Lock()
		view, connErr, cmdErr := a.view, a.connErr, a.cmdErr
		a.mu.Unlock()

		a.updateNowPlaying(view, connErr)
		a.updateProgress(view)
		a.updateQueue(view)
		a.updateStatus(view, cmdErr)
	})
}

// updateNowPlaying updates the now playing panel
func (a *App) updateNowPlaying(view *control.StateView, connErr error) {
	text := renderNowPlaying(view, connErr)
	if text != a.lastNowPlaying {
		a.lastNowPlaying = text
		a.nowPlaying.SetText(text)
	}
}

// updateProgress updates the progress bar
func (a *App) updateProgress(view *control.StateView) {
	_, _, width, _ := a.progress.GetInnerRect()
	barWidth := width - 14 // Account for time display
	// Only update cached width when GetInnerRect returns a positive value,
	// avoiding flicker from transient zero-width during layout.
	if barWidth > 0 {
		a.lastBarWidth = barWidth
	}
	if a.lastBarWidth < 10 {
		a.lastBarWidth = 10
	}

	text := renderProgress(view, a.lastBarWidth)
	if text != a.lastProgress {
		a.lastProgress = text
		a.progress.SetText(text)
	}
}

// updateQueue rebuilds the queue list when its entries change and keeps
// the playing entry marked
func (a *App) updateQueue(view *control.StateView) {
	var items []string
	current := -1
	if view != nil {
		items = queueItems(view)
		current = view.CurrentIndex
	}

	if slices.Equal(items, a.lastQueue) && current == a.lastCurrent {
		return
	}

	selected := a.queue.GetCurrentItem()
	a.queue.Clear()
	for _, item := range items {
		a.queue.AddItem(item, "", 0, nil)
	}
	if len(a.lastQueue) == 0 && current >= 0 {
		selected = current
	}
	if selected >= 0 && selected < len(items) {
		a.queue.SetCurrentItem(selected)
	}

	a.lastQueue = items
	a.lastCurrent = current
}

// updateStatus updates the one-line status bar
func (a *App) updateStatus(view *control.StateView, cmdErr error) {
	text := renderStatus(view, cmdErr)
	if text != a.lastStatus {
		a.lastStatus = text
		a.status.SetText(text)
	}
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// renderNowPlaying builds the now playing panel text
func renderNowPlaying(view *control.StateView, connErr error) string {
	if view == nil {
		msg := "Daemon not reachable"
		if connErr != nil {
			msg = "Daemon not reachable: " + connErr.Error()
		}
		return "\n\n[red]" + tview.Escape(msg) + "[-]"
	}

	track := view.CurrentTrack()
	if track == nil {
		return "\n\n[gray]Queue is empty[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(track.DisplayTitle())))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(track.Artist)))
	sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(track.Album)))
	sb.WriteString(fmt.Sprintf("\n\n%s", stateIcon(view)))
	return sb.String()
}

// stateIcon returns the colored indicator for the playback status
func stateIcon(view *control.StateView) string {
	switch {
	case view.IsLoading:
		return "[blue]… loading[-]"
	case view.IsPlaying:
		return "[green]▶[-]" // Play triangle
	case view.Status == "paused":
		return "[yellow]⏸[-]" // Pause icon
	case view.Status == "error":
		return "[red]✗[-]"
	default:
		return "[gray]■[-]" // Stop square
	}
}

// renderProgress builds the position / bar / duration line
func renderProgress(view *control.StateView, barWidth int) string {
	if view == nil || view.CurrentTrack() == nil {
		return ""
	}
	bar := buildProgressBar(view.Position, view.Duration, barWidth)
	return fmt.Sprintf("%s %s %s", formatDuration(view.Position), bar, formatDuration(view.Duration))
}

// queueItems renders one line per queue entry, marking the current one
func queueItems(view *control.StateView) []string {
	items := make([]string, len(view.Queue))
	for i, track := range view.Queue {
		marker := "  "
		if i == view.CurrentIndex {
			marker = "[green]▶[-] "
		}
		line := tview.Escape(track.DisplayTitle())
		if track.Artist != "" {
			line += " [gray]- " + tview.Escape(track.Artist) + "[-]"
		}
		items[i] = fmt.Sprintf("%s%2d. %s", marker, i+1, line)
	}
	return items
}

// renderStatus builds the status bar. The session's own error wins over a
// rejected command.
func renderStatus(view *control.StateView, cmdErr error) string {
	if view == nil {
		return ""
	}
	text := fmt.Sprintf(" mode: [white]%s[-]  volume: [white]%d%%[-]", view.Mode, int(view.Volume*100+0.5))
	if view.LastError != "" {
		text += "  [red]" + tview.Escape(view.LastError) + "[-]"
	} else if cmdErr != nil {
		text += "  [red]" + tview.Escape(cmdErr.Error()) + "[-]"
	}
	return text
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration time.Duration, width int) string {
	if duration == 0 || width <= 0 {
		return strings.Repeat("-", max(width, 0))
	}

	progress := float64(position) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	filled := int(progress * float64(width))
	empty := width - filled

	bar := "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"

	return bar
}

// formatDuration formats a duration as MM:SS or HH:MM:SS for longer durations
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
