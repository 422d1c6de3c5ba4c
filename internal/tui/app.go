package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/stegochat/stegochat/internal/app"
	"github.com/stegochat/stegochat/internal/bus"
	"github.com/stegochat/stegochat/internal/keyring"
	"github.com/stegochat/stegochat/internal/status"
	"github.com/stegochat/stegochat/internal/transport"
)

const flashDuration = 5 * time.Second

// App is the terminal UI over the client core. It subscribes to the bus
// and renders; all protocol work stays in the core.
type App struct {
	app   *tview.Application
	pages *tview.Pages
	core  *app.Core
	flash *Flash

	msgView   *tview.TextView
	roster    *tview.TextView
	composer  *tview.InputField
	statusBar *tview.TextView
	joinInput *tview.InputField

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application shell.
func NewApp(core *app.Core, defaultName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:    tview.NewApplication(),
		pages:  tview.NewPages(),
		core:   core,
		flash:  &Flash{},
		ctx:    ctx,
		cancel: cancel,
	}

	a.msgView = tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	a.msgView.SetBorder(true).SetTitle(" messages ")
	a.roster = tview.NewTextView().SetDynamicColors(true)
	a.roster.SetBorder(true).SetTitle(" online ")
	a.statusBar = tview.NewTextView().SetDynamicColors(true)

	a.composer = tview.NewInputField().SetLabel("> ")
	a.composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := a.composer.GetText()
		a.composer.SetText("")
		a.handleInput(text)
	})

	a.joinInput = tview.NewInputField().SetLabel("display name: ").SetText(defaultName)
	a.joinInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		a.join(a.joinInput.GetText())
	})

	a.setupLayout()
	return a
}

func (a *App) setupLayout() {
	joinForm := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox(), 0, 1, false).
		AddItem(a.joinInput, 1, 0, true).
		AddItem(tview.NewBox(), 0, 1, false)
	joinForm.SetBorder(true).SetTitle(" join chat ")

	chat := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewFlex().
			AddItem(a.msgView, 0, 4, false).
			AddItem(a.roster, 24, 0, false), 0, 1, false).
		AddItem(a.composer, 1, 0, true).
		AddItem(a.statusBar, 1, 0, false)

	a.pages.AddPage("join", joinForm, true, true)
	a.pages.AddPage("chat", chat, true, false)
}

// Run starts the event loop and blocks until quit.
func (a *App) Run() error {
	go a.consumeEvents()
	go a.refreshStatusLoop()
	defer a.cancel()
	return a.app.SetRoot(a.pages, true).SetFocus(a.joinInput).Run()
}

// Stop terminates the UI event loop.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) join(name string) {
	go func() {
		if _, err := a.core.Join(a.ctx, name); err != nil {
			a.flash.Set("join failed: "+err.Error(), flashDuration)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.composer)
		})
	}()
}

// consumeEvents drains the bus and schedules redraws. A single
// subscription with an empty prefix receives every event kind.
func (a *App) consumeEvents() {
	ch, unsub := a.core.Bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			a.handleEvent(evt)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessageReceived:
		m, ok := evt.Payload.(*transport.Message)
		if !ok {
			return
		}
		selfID := ""
		if sess := a.core.Sessions.Current(); sess != nil {
			selfID = sess.UserID
		}
		line := formatMessage(m, selfID)
		a.app.QueueUpdateDraw(func() {
			fmt.Fprintln(a.msgView, line)
			a.msgView.ScrollToEnd()
		})
	case bus.KindMessageNotice:
		n, ok := evt.Payload.(bus.NoticePayload)
		if !ok {
			return
		}
		line := formatNotice(n.Text, n.Timestamp)
		a.app.QueueUpdateDraw(func() {
			fmt.Fprintln(a.msgView, line)
			a.msgView.ScrollToEnd()
		})
	case bus.KindRosterUpdated:
		users, ok := evt.Payload.([]transport.PresenceEntry)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() {
			// Full replacement: the sidebar is always exactly the
			// latest snapshot.
			a.roster.Clear()
			for _, u := range users {
				fmt.Fprintf(a.roster, "%s\n", tview.Escape(u.Username))
			}
		})
	case bus.KindKeyChanged:
		change, ok := evt.Payload.(keyring.KeyChange)
		if !ok {
			return
		}
		note := "key: " + change.Key
		if !change.ServerSynced {
			note += " (local)"
		}
		a.flash.Set(note, flashDuration)
	case bus.KindNoticeInfo:
		if text, ok := evt.Payload.(string); ok {
			a.flash.Set(text, flashDuration)
		}
	case bus.KindNoticeError:
		if text, ok := evt.Payload.(string); ok {
			a.flash.Set("error: "+text, flashDuration)
		}
	}
}

func (a *App) refreshStatusLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.renderStatus)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) renderStatus() {
	state := a.core.Machine.Current()
	key := a.core.Keys.Active()
	synced := ""
	if key != "" && !a.core.Keys.ServerSynced() {
		synced = "*"
	}
	staged := a.core.Orchestrator.Batch().Len()

	line := fmt.Sprintf("[gray]%s[-]  key:%s%s  staged:%d", state, key, synced, staged)
	if flash := a.flash.Get(); flash != "" {
		line += "  [yellow]" + tview.Escape(flash) + "[-]"
	}
	a.statusBar.SetText(line)
}

// handleInput routes composer input: plain text is sent as a message,
// slash commands drive the rest of the core.
func (a *App) handleInput(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if !strings.HasPrefix(text, "/") {
		go func() { _ = a.core.Orchestrator.SendText(a.ctx, text) }()
		return
	}

	cmd, arg, _ := strings.Cut(text[1:], " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "quit":
		if a.core.Machine.Current() == status.Online {
			a.core.Leave()
		}
		a.Stop()
	case "key":
		a.flash.Set("active key: "+a.core.Keys.Active(), flashDuration)
	case "regen":
		a.core.Keys.RegenerateLocal()
	case "enc":
		go func() { _ = a.core.Orchestrator.SendEncoded(a.ctx, arg) }()
	case "img":
		a.sendImageFile(arg)
	case "stage":
		a.stageFile(arg)
	case "clear":
		a.core.Orchestrator.Batch().Clear()
		a.flash.Set("staged batch cleared", flashDuration)
	case "dec":
		go func() {
			decoded, err := a.core.Orchestrator.Decode(a.ctx, arg)
			if err != nil {
				return // already surfaced as a notice
			}
			a.app.QueueUpdateDraw(func() {
				fmt.Fprintf(a.msgView, "[green]decoded:[-] %s\n", tview.Escape(decoded))
				a.msgView.ScrollToEnd()
			})
		}()
	default:
		a.flash.Set("unknown command: /"+cmd, flashDuration)
	}
}

func (a *App) sendImageFile(path string) {
	go func() {
		f, err := os.Open(path)
		if err != nil {
			a.flash.Set("error: "+err.Error(), flashDuration)
			return
		}
		defer func() { _ = f.Close() }()
		_ = a.core.Orchestrator.SendImageData(a.ctx, filepath.Base(path), f)
	}()
}

func (a *App) stageFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		a.flash.Set("error: "+err.Error(), flashDuration)
		return
	}
	a.core.Orchestrator.Batch().Add(filepath.Base(path), data)
	a.flash.Set(fmt.Sprintf("staged %s (%d total)", filepath.Base(path), a.core.Orchestrator.Batch().Len()), flashDuration)
}
