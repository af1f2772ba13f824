package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/willwe-xyz/willwe-app/internal/notify"
	"github.com/willwe-xyz/willwe-app/internal/ui/style"
)

// TerminalSink prints each notification change as one styled line.
type TerminalSink struct {
	mu     sync.Mutex
	out    io.Writer
	styles style.ToastStyles
}

func NewTerminalSink(out io.Writer) *TerminalSink {
	return &TerminalSink{
		out:    out,
		styles: style.NewToastStyles(style.DefaultPalette()),
	}
}

func (s *TerminalSink) Show(n notify.Notification)   { s.print(n) }
func (s *TerminalSink) Update(n notify.Notification) { s.print(n) }
func (s *TerminalSink) Close(string)                 {}

func (s *TerminalSink) print(n notify.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, renderLine(s.styles, style.Icon(n.Status), n))
}

func renderLine(st style.ToastStyles, icon string, n notify.Notification) string {
	parts := []string{
		st.Status(n.Status).Render(icon),
		st.Title.Render(n.Title),
	}
	if n.Description != "" {
		parts = append(parts, st.Description.Render(n.Description))
	}
	if n.Link != "" {
		parts = append(parts, st.Link.Render(n.Link))
	}
	return strings.Join(parts, " ")
}
