package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/forkrun/internal/cliutil"
	forkrt "github.com/Paintersrp/forkrun/internal/runtime"
)

const (
	tableTitle          = "Children"
	logsTitle           = "Events"
	filterPageName      = "filter"
	defaultLogRetention = 500
)

// Option configures UI behaviour.
type Option func(*UI)

// WithMaxLogs sets the maximum number of events retained for each child.
func WithMaxLogs(n int) Option {
	return func(u *UI) {
		if n > 0 {
			u.maxLogs = n
		}
	}
}

// UI coordinates the interactive view of a spawn tree backed by tview.
type UI struct {
	app    *tview.Application
	pages  *tview.Pages
	table  *tview.Table
	logs   *tview.TextView
	events chan forkrt.Event

	children map[int]*childState

	visible     []int
	selected    int
	logsPretty  bool
	filter      string
	filterExpr  *regexp.Regexp
	logsFocused bool
	maxLogs     int

	// selecting is set while the table selection is moved programmatically
	// with mu held.
	selecting bool

	mu sync.RWMutex

	cancelMu sync.Mutex
	cancel   context.CancelFunc

	wg        sync.WaitGroup
	stopOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type childState struct {
	ordinal   int
	pid       int
	spawned   time.Time
	finished  time.Time
	state     forkrt.EventType
	status    int
	replaced  int
	message   string
	exitKnown bool

	logs []cliutil.LogRecord
}

// New constructs a UI configured with the supplied options.
func New(opts ...Option) *UI {
	app := tview.NewApplication()
	table := tview.NewTable().SetFixed(1, 1).SetSelectable(true, false)
	table.SetBorder(true).SetTitle(tableTitle)

	logs := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	logs.SetBorder(true).SetTitle(logsTitle)
	logs.SetChangedFunc(func() {
		app.Draw()
	})

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(table, 0, 3, true).
		AddItem(logs, 0, 2, false)

	pages := tview.NewPages().AddPage("main", flex, true, true)

	ui := &UI{
		app:        app,
		pages:      pages,
		table:      table,
		logs:       logs,
		events:     make(chan forkrt.Event, 256),
		children:   make(map[int]*childState),
		logsPretty: true,
		maxLogs:    defaultLogRetention,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(ui)
	}

	table.SetSelectionChangedFunc(func(row, column int) {
		if ui.selecting {
			return
		}
		ui.mu.Lock()
		defer ui.mu.Unlock()
		ui.syncSelection(row)
		ui.renderLogsLocked()
	})

	logs.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEnter {
			ui.toggleFocus()
			return nil
		}
		return event
	})

	app.SetRoot(pages, true)
	app.SetInputCapture(ui.handleKey)

	ui.mu.Lock()
	ui.refreshTableLocked()
	ui.mu.Unlock()

	return ui
}

// EventSink exposes the channel where runtime events should be delivered.
func (u *UI) EventSink() chan<- forkrt.Event {
	return u.events
}

// CloseEvents releases the event channel, allowing internal goroutines to exit cleanly.
func (u *UI) CloseEvents() {
	u.closeOnce.Do(func() {
		close(u.events)
	})
}

// Done returns a channel that is closed when the UI stops.
func (u *UI) Done() <-chan struct{} {
	return u.done
}

// Run starts the tview application and processes incoming events until Stop is invoked
// or the provided context is cancelled.
func (u *UI) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	u.cancelMu.Lock()
	u.cancel = cancel
	u.cancelMu.Unlock()

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.consumeEvents(ctx)
	}()

	go func() {
		<-ctx.Done()
		u.Stop()
	}()

	err := u.app.Run()

	u.cancelMu.Lock()
	cancel = u.cancel
	u.cancel = nil
	u.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}

	u.wg.Wait()
	u.Stop()

	return err
}

// Stop terminates the application loop and releases resources.
func (u *UI) Stop() {
	u.stopOnce.Do(func() {
		u.cancelMu.Lock()
		cancel := u.cancel
		u.cancel = nil
		u.cancelMu.Unlock()
		if cancel != nil {
			cancel()
		}
		u.app.Stop()
		close(u.done)
	})
}

// consumeEvents keeps draining the sink after ctx ends: the runtime blocks on
// every send, so the channel must be read until it is closed.
func (u *UI) consumeEvents(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	draining := false
	ctxDone := ctx.Done()

	for {
		var tick <-chan time.Time
		if !draining {
			tick = ticker.C
		}

		select {
		case <-ctxDone:
			if !draining {
				draining = true
				ticker.Stop()
			}
			ctxDone = nil
		case evt, ok := <-u.events:
			if !ok {
				return
			}
			if draining {
				continue
			}
			u.applyEvent(evt)
		case <-tick:
			u.queueRefresh(false)
		}
	}
}

func (u *UI) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if u.pages.HasPage(filterPageName) {
		return event
	}
	switch event.Key() {
	case tcell.KeyEnter:
		u.toggleFocus()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			go u.Stop()
			return nil
		case '/':
			u.showFilterPrompt()
			return nil
		case 'j', 'J':
			u.toggleJSON()
			return nil
		}
	}
	return event
}

func (u *UI) toggleFocus() {
	if u.logsFocused {
		u.app.SetFocus(u.table)
	} else {
		u.app.SetFocus(u.logs)
	}
	u.logsFocused = !u.logsFocused
}

func (u *UI) toggleJSON() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.logsPretty = !u.logsPretty
	u.renderLogsLocked()
}

func (u *UI) showFilterPrompt() {
	u.mu.RLock()
	current := u.filter
	u.mu.RUnlock()

	input := tview.NewInputField().
		SetLabel("State filter: ").
		SetText(current).
		SetFieldWidth(40)

	form := tview.NewForm().
		AddFormItem(input).
		AddButton("Apply", func() {
			u.pages.RemovePage(filterPageName)
			u.applyFilter(input.GetText())
			u.app.SetFocus(u.table)
		}).
		AddButton("Cancel", func() {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.table)
		})

	form.SetBorder(true).SetTitle("Filter Children")

	grid := tview.NewGrid().
		SetColumns(0, 60, 0).
		SetRows(0, 7, 0).
		AddItem(form, 1, 1, 1, 1, 0, 0, true)

	u.pages.AddPage(filterPageName, grid, true, true)
	u.app.SetFocus(input)
}

func (u *UI) applyFilter(expr string) {
	u.mu.Lock()
	err := u.applyFilterLocked(expr)
	u.mu.Unlock()
	if err != nil {
		u.showErrorModal(fmt.Sprintf("Invalid filter: %v", err))
		return
	}
	u.queueRefresh(true)
}

// applyFilterLocked restricts the table to children whose state matches expr.
// An empty expression clears the filter.
func (u *UI) applyFilterLocked(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		u.filter = ""
		u.filterExpr = nil
		return nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return err
	}
	u.filter = expr
	u.filterExpr = re
	return nil
}

func (u *UI) showErrorModal(message string) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			u.pages.RemovePage(filterPageName)
			u.app.SetFocus(u.table)
		})

	u.pages.RemovePage(filterPageName)
	u.pages.AddPage(filterPageName, modal, true, true)
}

func (u *UI) applyEvent(evt forkrt.Event) {
	u.mu.Lock()
	updateLogs := u.applyEventLocked(evt)
	u.mu.Unlock()

	u.queueRefresh(updateLogs)
}

// applyEventLocked folds evt into the child table and reports whether the
// selected child changed.
func (u *UI) applyEventLocked(evt forkrt.Event) bool {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.Ordinal <= 0 {
		return false
	}

	state := u.children[evt.Ordinal]
	if state == nil {
		state = &childState{ordinal: evt.Ordinal}
		u.children[evt.Ordinal] = state
	}

	switch evt.Type {
	case forkrt.EventTypeSpawned:
		state.pid = evt.Pid
		state.spawned = evt.Timestamp
		state.finished = time.Time{}
		state.exitKnown = false
		state.status = 0
		state.state = evt.Type
	case forkrt.EventTypeReplaced:
		state.replaced++
	case forkrt.EventTypeExited, forkrt.EventTypeFailed, forkrt.EventTypeLost:
		if evt.Pid == state.pid {
			state.finished = evt.Timestamp
			state.status = evt.Status
			state.exitKnown = true
			state.state = evt.Type
		}
	case forkrt.EventTypeError:
		state.state = evt.Type
	}
	if evt.Message != "" {
		state.message = cliutil.RedactSecrets(evt.Message)
	} else if evt.Err != nil {
		state.message = cliutil.RedactSecrets(evt.Err.Error())
	}

	state.logs = append(state.logs, cliutil.NewLogRecord(evt))
	if len(state.logs) > u.maxLogs {
		trim := len(state.logs) - u.maxLogs
		state.logs = append([]cliutil.LogRecord(nil), state.logs[trim:]...)
	}

	return u.selected == 0 || u.selected == evt.Ordinal
}

func (u *UI) queueRefresh(updateLogs bool) {
	u.app.QueueUpdateDraw(func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.refreshTableLocked()
		if updateLogs {
			u.renderLogsLocked()
		}
	})
}

func (u *UI) refreshTableLocked() {
	u.table.Clear()

	headers := []string{"ORDINAL", "PID", "STATE", "STATUS", "REPLACED", "AGE", "MESSAGE"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetSelectable(false).
			SetAttributes(tcell.AttrBold)
		u.table.SetCell(0, col, cell)
	}

	ordinals := make([]int, 0, len(u.children))
	for ordinal, state := range u.children {
		if u.filterExpr != nil && !u.filterExpr.MatchString(string(state.state)+" "+formatState(state.state)) {
			continue
		}
		ordinals = append(ordinals, ordinal)
	}
	sort.Ints(ordinals)

	u.visible = ordinals

	if u.filter != "" {
		u.table.SetTitle(fmt.Sprintf("%s /%s/", tableTitle, u.filter))
	} else {
		u.table.SetTitle(tableTitle)
	}

	now := time.Now()
	for row, ordinal := range ordinals {
		state := u.children[ordinal]
		status := "-"
		if state.exitKnown {
			status = strconv.Itoa(state.status)
		}
		message := state.message
		if len(message) > 80 {
			message = message[:77] + "..."
		}

		values := []string{
			strconv.Itoa(ordinal),
			strconv.Itoa(state.pid),
			formatState(state.state),
			status,
			strconv.Itoa(state.replaced),
			state.age(now),
			message,
		}
		for col, value := range values {
			cell := tview.NewTableCell(value)
			if col == 0 {
				cell = cell.SetReference(ordinal)
			}
			if col == 2 {
				cell = cell.SetTextColor(stateColor(state.state))
			}
			u.table.SetCell(row+1, col, cell)
		}
	}

	u.ensureSelectionLocked()
}

func (s *childState) age(now time.Time) string {
	if s.spawned.IsZero() {
		return "-"
	}
	end := now
	if !s.finished.IsZero() {
		end = s.finished
	}
	return units.HumanDuration(end.Sub(s.spawned))
}

func (u *UI) renderLogsLocked() {
	u.logs.Clear()
	state := u.children[u.selected]
	if state == nil {
		u.logs.SetTitle(logsTitle)
		return
	}

	u.logs.SetTitle(fmt.Sprintf("%s (ordinal %d)", logsTitle, state.ordinal))

	for _, record := range state.logs {
		var data []byte
		var err error
		if u.logsPretty {
			data, err = json.MarshalIndent(record, "", "  ")
		} else {
			data, err = json.Marshal(record)
		}
		if err != nil {
			fmt.Fprintf(u.logs, "{\"error\":\"%v\"}\n", err)
			continue
		}
		fmt.Fprintf(u.logs, "%s\n", tview.Escape(string(data)))
	}
	u.logs.ScrollToEnd()
}

func (u *UI) ensureSelectionLocked() {
	u.selecting = true
	defer func() { u.selecting = false }()

	if len(u.visible) == 0 {
		u.selected = 0
		u.table.Select(0, 0)
		return
	}

	idx := -1
	for i, ordinal := range u.visible {
		if ordinal == u.selected {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = 0
		u.selected = u.visible[0]
	}
	u.table.Select(idx+1, 0)
}

func (u *UI) syncSelection(row int) {
	if row <= 0 || row-1 >= len(u.visible) {
		return
	}
	u.selected = u.visible[row-1]
}

func formatState(t forkrt.EventType) string {
	switch t {
	case "":
		return "-"
	case forkrt.EventTypeSpawned:
		return "Running"
	}
	s := string(t)
	return strings.ToUpper(s[:1]) + s[1:]
}

func stateColor(t forkrt.EventType) tcell.Color {
	switch t {
	case forkrt.EventTypeSpawned:
		return tcell.ColorGreen
	case forkrt.EventTypeFailed, forkrt.EventTypeError:
		return tcell.ColorRed
	case forkrt.EventTypeLost:
		return tcell.ColorYellow
	default:
		return tcell.ColorDefault
	}
}
