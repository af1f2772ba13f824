package ui

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/notify"
)

// Session runs one operation under a full-screen toast view. It is also a
// notify.Sink: while a session is running, notifications reach its program;
// otherwise they are dropped.
type Session struct {
	logger  *zap.Logger
	options []tea.ProgramOption

	mu      sync.RWMutex
	program *tea.Program
}

var _ notify.Sink = (*Session)(nil)

func NewSession(logger *zap.Logger, opts ...tea.ProgramOption) *Session {
	return &Session{
		logger:  logger.Named("ui"),
		options: opts,
	}
}

// Run shows the toast view while work runs. Quitting the view cancels the
// context handed to work; Run returns once work has returned.
func (s *Session) Run(ctx context.Context, work func(ctx context.Context) (string, error)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, s.options...)
	program := tea.NewProgram(NewToastModel(), opts...)
	s.setProgram(program)
	defer s.setProgram(nil)

	workErr := make(chan error, 1)
	go func() {
		var summary string
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("operation panic: %v", r)
				s.logger.Error("Operation panic recovered",
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())))
			}
			workErr <- err
			program.Send(DoneMsg{Summary: summary, Err: err})
		}()
		summary, err = work(ctx)
	}()

	uiErr := s.runProgram(program)
	cancel()
	err := <-workErr

	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		s.logger.Error("UI stopped with error", zap.Error(uiErr))
		return errors.Join(err, uiErr)
	}
	return err
}

func (s *Session) runProgram(p *tea.Program) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("UI panic: %v", r)
			s.logger.Error("UI panic recovered",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("UI error: %w", err)
	}
	return nil
}

func (s *Session) setProgram(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.program = p
}

func (s *Session) send(msg NotificationMsg) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.program != nil {
		s.program.Send(msg)
	}
}

func (s *Session) Show(n notify.Notification) {
	s.send(NotificationMsg{Op: OpShow, Notification: n})
}

func (s *Session) Update(n notify.Notification) {
	s.send(NotificationMsg{Op: OpUpdate, Notification: n})
}

func (s *Session) Close(id string) {
	s.send(NotificationMsg{Op: OpClose, Notification: notify.Notification{ID: id}})
}
