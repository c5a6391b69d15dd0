package client

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jroimartin/gocui"

	"github.com/Tyrowin/circe/internal/transport"
)

// View names.
const (
	msgView    = "messages"
	roomView   = "rooms"
	userView   = "users"
	statusView = "status"
	inputView  = "input"
	helpView   = "help"
)

// UI is the full-screen terminal front end: a message pane, room and user
// sidebars, a status bar, and an input line.
type UI struct {
	gui      *gocui.Gui
	client   *Client
	server   string
	showHelp bool
	offline  bool
}

// NewUI takes over the terminal and binds a client to conn. server labels
// the status bar.
func NewUI(conn transport.Conn, server string, opts ...Option) (*UI, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, err
	}
	g.Cursor = true

	ui := &UI{gui: g, server: server}
	opts = append(opts, WithStateChange(ui.refresh))
	ui.client = New(conn, viewWriter{gui: g}, opts...)

	g.SetManagerFunc(ui.layout)
	return ui, nil
}

func (ui *UI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	sidebarWidth := 24
	msgWidth := maxX - sidebarWidth - 1
	msgHeight := maxY - 6
	roomHeight := msgHeight / 2

	if v, err := g.SetView(msgView, 0, 0, msgWidth, msgHeight); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Messages"
		v.Wrap = true
		v.Autoscroll = true
		_, _ = fmt.Fprintln(v, "Welcome to Circe. Type \\login <username> to start, F1 for help.")
	}

	if v, err := g.SetView(roomView, msgWidth+1, 0, maxX-1, roomHeight); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Rooms"
		v.Wrap = true
	}

	if v, err := g.SetView(userView, msgWidth+1, roomHeight+1, maxX-1, msgHeight); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Online Users"
		v.Wrap = true
	}

	if v, err := g.SetView(statusView, 0, msgHeight+1, maxX-1, msgHeight+3); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Status"
		ui.drawStatus(v)
	}

	if v, err := g.SetView(inputView, 0, msgHeight+3, maxX-1, maxY-1); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Input"
		v.Editable = true
		v.Wrap = true
		if _, err := g.SetCurrentView(inputView); err != nil {
			return err
		}
	}

	if !ui.showHelp {
		if err := g.DeleteView(helpView); err != nil && !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		return nil
	}
	if v, err := g.SetView(helpView, maxX/6, maxY/6, maxX*5/6, maxY*5/6); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Help (F1 to close)"
		_, _ = fmt.Fprintln(v, helpText)
		_, _ = fmt.Fprint(v, `
Keybindings:
  Enter   send
  Tab     switch views
  F1      toggle help
  Ctrl-C  quit`)
	}
	return nil
}

// refresh redraws the sidebars and the status bar from the client state.
func (ui *UI) refresh() {
	ui.gui.Update(func(g *gocui.Gui) error {
		snap := ui.client.State().Snapshot()

		if v, err := g.View(userView); err == nil {
			v.Clear()
			for _, u := range snap.Users {
				marker := "  "
				if u.Username == snap.Username {
					marker = "* "
				}
				_, _ = fmt.Fprintf(v, "%s%s (%s)\n", marker, u.Username, strings.ToLower(string(u.Status)))
			}
		}

		if v, err := g.View(roomView); err == nil {
			v.Clear()
			rooms := make([]string, 0, len(snap.Rooms))
			for name := range snap.Rooms {
				rooms = append(rooms, name)
			}
			slices.Sort(rooms)
			for _, name := range rooms {
				_, _ = fmt.Fprintf(v, "# %s (%d)\n", name, len(snap.Rooms[name]))
			}
			for room, from := range snap.Invites {
				_, _ = fmt.Fprintf(v, "? %s from %s\n", room, from)
			}
		}

		if v, err := g.View(statusView); err == nil {
			ui.drawStatus(v)
		}
		return nil
	})
}

func (ui *UI) drawStatus(v *gocui.View) {
	v.Clear()
	snap := ui.client.State().Snapshot()
	switch {
	case ui.offline:
		_, _ = fmt.Fprintf(v, "Disconnected from %s | Ctrl-C: quit", ui.server)
	case snap.LoggedIn:
		_, _ = fmt.Fprintf(v, "%s (%s) @ %s | F1: help", snap.Username, snap.Status, ui.server)
	default:
		_, _ = fmt.Fprintf(v, "Not logged in @ %s | F1: help", ui.server)
	}
}

func (ui *UI) keybindings() error {
	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			_ = ui.client.Execute(`\quit`)
			return gocui.ErrQuit
		}); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding("", gocui.KeyF1, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			ui.showHelp = !ui.showHelp
			return nil
		}); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding(inputView, gocui.KeyEnter, gocui.ModNone, ui.handleInput); err != nil {
		return err
	}

	return ui.gui.SetKeybinding("", gocui.KeyTab, gocui.ModNone,
		func(g *gocui.Gui, v *gocui.View) error {
			next := map[string]string{
				msgView:   roomView,
				roomView:  userView,
				userView:  inputView,
				inputView: msgView,
			}
			if v == nil {
				_, err := g.SetCurrentView(inputView)
				return err
			}
			if name, ok := next[v.Name()]; ok {
				_, err := g.SetCurrentView(name)
				return err
			}
			return nil
		})
}

func (ui *UI) handleInput(_ *gocui.Gui, v *gocui.View) error {
	input := strings.TrimSpace(v.Buffer())
	v.Clear()
	if err := v.SetCursor(0, 0); err != nil {
		return err
	}
	if input == "" {
		return nil
	}

	err := ui.client.Execute(input)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrQuit):
		return gocui.ErrQuit
	default:
		_, _ = fmt.Fprintf(ui.client.out, "! %v\n", err)
		return nil
	}
}

// Run starts the read loop and the UI main loop. It returns when the user
// quits or logs out.
func (ui *UI) Run() error {
	if err := ui.keybindings(); err != nil {
		return err
	}

	readDone := make(chan error, 1)
	go func() {
		err := ui.client.ReadLoop()
		readDone <- err
		ui.gui.Update(func(g *gocui.Gui) error {
			if err == nil {
				return gocui.ErrQuit
			}
			ui.offline = true
			if v, verr := g.View(statusView); verr == nil {
				ui.drawStatus(v)
			}
			return nil
		})
	}()

	if err := ui.gui.MainLoop(); err != nil && !errors.Is(err, gocui.ErrQuit) {
		return err
	}
	_ = ui.client.Close()
	<-readDone
	return nil
}

// Close restores the terminal.
func (ui *UI) Close() {
	ui.gui.Close()
}

// viewWriter appends output to the message pane from any goroutine.
type viewWriter struct {
	gui *gocui.Gui
}

func (w viewWriter) Write(p []byte) (int, error) {
	text := string(p)
	w.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(msgView)
		if err != nil {
			return nil
		}
		_, err = fmt.Fprint(v, text)
		return err
	})
	return len(p), nil
}
