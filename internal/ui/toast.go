package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/willwe-xyz/willwe-app/internal/notify"
	"github.com/willwe-xyz/willwe-app/internal/ui/style"
)

// ToastModel renders the open notifications of a running operation as a
// stack of toasts, oldest first.
type ToastModel struct {
	styles  style.ToastStyles
	spinner spinner.Model
	toasts  []notify.Notification
	width   int

	done    bool
	summary string
	err     error
}

func NewToastModel() ToastModel {
	styles := style.NewToastStyles(style.DefaultPalette())
	return ToastModel{
		styles: styles,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(styles.Status(notify.StatusPending)),
		),
	}
}

func (m ToastModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ToastModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case NotificationMsg:
		m.apply(msg)
		return m, nil

	case DoneMsg:
		m.done = true
		m.summary = msg.Summary
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ToastModel) apply(msg NotificationMsg) {
	id := msg.Notification.ID
	idx := -1
	for i, t := range m.toasts {
		if t.ID == id {
			idx = i
			break
		}
	}

	switch msg.Op {
	case OpShow, OpUpdate:
		if idx >= 0 {
			m.toasts[idx] = msg.Notification
			return
		}
		m.toasts = append(m.toasts, msg.Notification)
	case OpClose:
		if idx >= 0 {
			m.toasts = append(m.toasts[:idx], m.toasts[idx+1:]...)
		}
	}
}

// Toasts returns the open notifications in display order.
func (m ToastModel) Toasts() []notify.Notification {
	return append([]notify.Notification(nil), m.toasts...)
}

// Done reports whether the operation has finished, and its error.
func (m ToastModel) Done() (bool, error) {
	return m.done, m.err
}

func (m ToastModel) View() string {
	var b strings.Builder

	for _, t := range m.toasts {
		icon := style.Icon(t.Status)
		if t.Status == notify.StatusPending {
			icon = m.spinner.View()
		}

		lines := []string{m.styles.Status(t.Status).Render(icon) + " " + m.styles.Title.Render(t.Title)}
		if t.Description != "" {
			lines = append(lines, m.styles.Description.Render(t.Description))
		}
		if t.Link != "" {
			lines = append(lines, m.styles.Link.Render(t.Link))
		}

		box := m.styles.Border(t.Status)
		if m.width > 4 {
			box = box.Width(m.width - 4)
		}
		b.WriteString(box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)))
		b.WriteString("\n")
	}

	switch {
	case m.done && m.err != nil:
		b.WriteString(m.styles.Failure.Render(m.err.Error()))
		b.WriteString("\n")
	case m.done && m.summary != "":
		b.WriteString(m.styles.Summary.Render(m.summary))
		b.WriteString("\n")
	case !m.done:
		b.WriteString(m.styles.Help.Render("q: stop waiting"))
		b.WriteString("\n")
	}
	return b.String()
}
