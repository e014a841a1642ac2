package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/AgentIsComing/live-screen-share-releases/internal/session"
)

const maxEvents = 8

// Header is the fixed part of the status view.
type Header struct {
	Role     string
	RoomID   string
	ClientID string
	Signal   string
	Code     string
}

// Controls are the actions bound to keys. A nil action hides its key.
type Controls struct {
	Retry        func()
	CycleProfile func() string
}

// StatusView shows coordinator status either as a live terminal view or,
// when stdout is not a terminal, as plain log lines.
type StatusView struct {
	header   Header
	controls Controls
	out      io.Writer
	plain    bool

	mu      sync.Mutex
	program *tea.Program
	model   *statusModel
}

// NewStatusView picks the interactive view when stdout is a terminal.
func NewStatusView(header Header, controls Controls) *StatusView {
	return &StatusView{
		header:   header,
		controls: controls,
		out:      os.Stdout,
		plain:    !term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// Plain forces line-log output to w.
func (v *StatusView) Plain(w io.Writer) *StatusView {
	v.plain = true
	v.out = w
	return v
}

// Run blocks until ctx is done or the user quits. It returns
// context.Canceled when the user quit.
func (v *StatusView) Run(ctx context.Context) error {
	if v.plain {
		v.mu.Lock()
		fmt.Fprintln(v.out, v.header.line())
		v.mu.Unlock()
		<-ctx.Done()
		return nil
	}

	model := newStatusModel(v.header, v.controls)
	program := tea.NewProgram(model, tea.WithContext(ctx))
	v.mu.Lock()
	v.model, v.program = model, program
	v.mu.Unlock()

	final, err := program.Run()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if m, ok := final.(*statusModel); ok && m.quitting {
		return context.Canceled
	}
	return nil
}

// Push shows a status update. Safe from any goroutine.
func (v *StatusView) Push(s session.Status) {
	if v.plain {
		v.mu.Lock()
		fmt.Fprintln(v.out, formatEvent(time.Now(), s, false))
		v.mu.Unlock()
		return
	}
	v.send(statusMsg{at: time.Now(), status: s})
}

// SetPeers replaces the peer list.
func (v *StatusView) SetPeers(peers []session.PeerInfo) {
	if !v.plain {
		v.send(peersMsg(peers))
	}
}

// SetProfile shows the active quality profile.
func (v *StatusView) SetProfile(name string) {
	if v.plain {
		v.mu.Lock()
		fmt.Fprintf(v.out, "profile: %s\n", name)
		v.mu.Unlock()
		return
	}
	v.send(profileMsg(name))
}

func (v *StatusView) send(msg tea.Msg) {
	v.mu.Lock()
	p := v.program
	v.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (h Header) line() string {
	parts := []string{h.Role, "room=" + h.RoomID, "id=" + h.ClientID}
	if h.Signal != "" {
		parts = append(parts, "signal="+h.Signal)
	}
	if h.Code != "" {
		parts = append(parts, "code="+h.Code)
	}
	return strings.Join(parts, " ")
}

type statusMsg struct {
	at     time.Time
	status session.Status
}

type peersMsg []session.PeerInfo

type profileMsg string

type event struct {
	at     time.Time
	status session.Status
}

type statusModel struct {
	header   Header
	controls Controls
	spinner  spinner.Model
	events   []event
	peers    []session.PeerInfo
	profile  string
	quitting bool
}

func newStatusModel(header Header, controls Controls) *statusModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle
	return &statusModel{header: header, controls: controls, spinner: s}
}

func (m *statusModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.controls.Retry != nil {
				retry := m.controls.Retry
				return m, func() tea.Msg {
					retry()
					return nil
				}
			}
		case "p":
			if m.controls.CycleProfile != nil {
				cycle := m.controls.CycleProfile
				return m, func() tea.Msg {
					return profileMsg(cycle())
				}
			}
		}

	case statusMsg:
		m.events = append(m.events, event(msg))
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}

	case peersMsg:
		m.peers = msg

	case profileMsg:
		m.profile = string(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *statusModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	icon := IconScreen
	if m.header.Role == "viewer" {
		icon = IconViewer
	}
	b.WriteString(fmt.Sprintf("\n%s %s %s\n", icon, BadgeStyle.Render(strings.ToUpper(m.header.Role)), TitleStyle.Render(m.header.RoomID)))

	details := []string{fmt.Sprintf("%s %s", IconPeer, m.header.ClientID)}
	if m.header.Code != "" {
		details = append(details, fmt.Sprintf("%s code %s", IconKey, BoldStyle.Render(m.header.Code)))
	}
	if m.profile != "" {
		details = append(details, "profile "+BoldStyle.Render(m.profile))
	}
	b.WriteString(MutedStyle.Render(strings.Join(details, "  ")) + "\n\n")

	if len(m.peers) == 0 {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), MutedStyle.Render("no peers")))
	}
	for _, p := range m.peers {
		b.WriteString(fmt.Sprintf("  %s %s %s\n", IconPeer, p.ID, stateStyle(p.State).Render(p.State)))
	}
	b.WriteString("\n")

	for _, e := range m.events {
		b.WriteString(formatEvent(e.at, e.status, true) + "\n")
	}

	b.WriteString("\n" + MutedStyle.Render(m.keyHelp()))
	return b.String()
}

func (m *statusModel) keyHelp() string {
	var keys []string
	if m.controls.Retry != nil {
		keys = append(keys, "r retry")
	}
	if m.controls.CycleProfile != nil {
		keys = append(keys, "p profile")
	}
	keys = append(keys, "q quit")
	return strings.Join(keys, " • ")
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "connected":
		return SuccessStyle
	case "failed", "closed":
		return ErrorStyle
	case "disconnected":
		return WarningStyle
	}
	return MutedStyle
}

func formatEvent(at time.Time, s session.Status, styled bool) string {
	stamp := at.Format("15:04:05")
	text := s.Message
	if s.PeerID != "" {
		text = s.PeerID + ": " + text
	}
	if s.Err != nil {
		text += " (" + s.Err.Error() + ")"
	}
	if !styled {
		return fmt.Sprintf("%s %-17s %s", stamp, s.Kind, text)
	}

	switch s.Kind {
	case session.Error:
		text = ErrorStyle.Render(IconError + " " + text)
	case session.Warning:
		text = WarningStyle.Render(IconWarning + " " + text)
	case session.PeerConnected:
		text = SuccessStyle.Render(IconLive + " " + text)
	case session.PeerDisconnected:
		text = MutedStyle.Render(IconPeer + " " + text)
	default:
		text = IconInfo + " " + text
	}
	return MutedStyle.Render(stamp) + " " + text
}
