package ui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/willwe-xyz/willwe-app/internal/notify"
)

func update(t *testing.T, m ToastModel, msg tea.Msg) (ToastModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(ToastModel)
	require.True(t, ok)
	return out, cmd
}

func TestToastModel_Lifecycle(t *testing.T) {
	m := NewToastModel()
	require.NotNil(t, m.Init())

	m, _ = update(t, m, NotificationMsg{Op: OpShow, Notification: notify.Notification{
		ID: "tx1", Title: "Confirm in wallet", Status: notify.StatusInfo,
	}})
	m, _ = update(t, m, NotificationMsg{Op: OpShow, Notification: notify.Notification{
		ID: "tx2", Title: "Approval", Status: notify.StatusInfo,
	}})
	m, _ = update(t, m, NotificationMsg{Op: OpUpdate, Notification: notify.Notification{
		ID: "tx1", Title: "Transaction Pending", Status: notify.StatusPending,
		Link: "https://basescan.org/tx/0x01",
	}})

	toasts := m.Toasts()
	require.Len(t, toasts, 2)
	assert.Equal(t, "Transaction Pending", toasts[0].Title, "updated in place")
	assert.Contains(t, m.View(), "https://basescan.org/tx/0x01")

	m, _ = update(t, m, NotificationMsg{Op: OpClose, Notification: notify.Notification{ID: "tx1"}})
	m, _ = update(t, m, NotificationMsg{Op: OpClose, Notification: notify.Notification{ID: "unknown"}})
	require.Len(t, m.Toasts(), 1)
	assert.Equal(t, "tx2", m.Toasts()[0].ID)
	assert.NotContains(t, m.View(), "Transaction Pending")
}

func TestToastModel_DoneQuits(t *testing.T) {
	m := NewToastModel()
	m, cmd := update(t, m, DoneMsg{Summary: "Minted 50"})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	done, err := m.Done()
	assert.True(t, done)
	assert.NoError(t, err)
	assert.Contains(t, m.View(), "Minted 50")

	m, _ = update(t, NewToastModel(), DoneMsg{Err: errors.New("approval required")})
	assert.Contains(t, m.View(), "approval required")
}

func TestToastModel_Keys(t *testing.T) {
	_, cmd := update(t, NewToastModel(), tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = update(t, NewToastModel(), tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
}

func TestToastModel_SpinnerTicks(t *testing.T) {
	m := NewToastModel()
	_, cmd := update(t, m, m.spinner.Tick())
	assert.NotNil(t, cmd)

	_, cmd = update(t, m, spinner.TickMsg{ID: m.spinner.ID() + 1})
	assert.Nil(t, cmd, "ticks for other spinners are ignored")
}

func TestTerminalSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTerminalSink(&buf)

	sink.Show(notify.Notification{ID: "tx1", Title: "Confirm in wallet", Status: notify.StatusInfo})
	sink.Update(notify.Notification{
		ID: "tx1", Title: "Transaction Failed", Description: "Insufficient funds",
		Status: notify.StatusError,
	})
	sink.Close("tx1")

	out := buf.String()
	assert.Contains(t, out, "Confirm in wallet")
	assert.Contains(t, out, "Insufficient funds")
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func headless() []tea.ProgramOption {
	return []tea.ProgramOption{
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	}
}

func TestSession_Run(t *testing.T) {
	s := NewSession(zap.NewNop(), headless()...)

	err := s.Run(context.Background(), func(ctx context.Context) (string, error) {
		s.Show(notify.Notification{ID: "tx1", Title: "Confirm in wallet"})
		s.Update(notify.Notification{ID: "tx1", Title: "Transaction Pending", Status: notify.StatusPending})
		s.Close("tx1")
		return "done", nil
	})
	require.NoError(t, err)

	// Idle sessions drop notifications without blocking.
	s.Show(notify.Notification{ID: "late"})
}

func TestSession_RunReturnsWorkError(t *testing.T) {
	s := NewSession(zap.NewNop(), headless()...)
	want := errors.New("approval required")

	err := s.Run(context.Background(), func(context.Context) (string, error) {
		return "", want
	})
	assert.ErrorIs(t, err, want)
}

func TestSession_RecoversWorkPanic(t *testing.T) {
	s := NewSession(zap.NewNop(), headless()...)

	err := s.Run(context.Background(), func(context.Context) (string, error) {
		panic("boom")
	})
	assert.ErrorContains(t, err, "boom")
}

func TestSession_ParentCancel(t *testing.T) {
	s := NewSession(zap.NewNop(), headless()...)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run(ctx, func(ctx context.Context) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
}
