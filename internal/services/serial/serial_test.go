package serial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iwtcode/hipotService/internal/events"
	"github.com/iwtcode/hipotService/internal/middleware/logging"
	apperrors "github.com/iwtcode/hipotService/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newPrompt(timeout time.Duration) *Prompt {
	return NewPrompt(timeout, events.New(), logging.NewDiscard("test"))
}

func acquireAsync(p *Prompt) <-chan [2]interface{} {
	out := make(chan [2]interface{}, 1)
	go func() {
		s, err := p.Acquire(context.Background())
		out <- [2]interface{}{s, err}
	}()
	return out
}

func TestPromptSubmit(t *testing.T) {
	p := newPrompt(time.Second)
	res := acquireAsync(p)

	require.Eventually(t, p.Waiting, time.Second, 5*time.Millisecond)
	require.NoError(t, p.Submit("  SN12345 "))

	got := <-res
	require.Equal(t, "SN12345", got[0])
	require.Nil(t, got[1])
	require.False(t, p.Waiting())
}

func TestPromptRejectsEmptySerial(t *testing.T) {
	p := newPrompt(time.Second)
	_ = acquireAsync(p)
	require.Eventually(t, p.Waiting, time.Second, 5*time.Millisecond)

	err := p.Submit("   ")
	require.True(t, apperrors.IsValidation(err))
	require.True(t, p.Waiting())
	require.NoError(t, p.Cancel())
}

func TestPromptCancel(t *testing.T) {
	p := newPrompt(time.Second)
	res := acquireAsync(p)
	require.Eventually(t, p.Waiting, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Cancel())
	got := <-res
	require.ErrorIs(t, got[1].(error), apperrors.ErrSerialNotProvided)
}

func TestPromptTimeout(t *testing.T) {
	p := newPrompt(30 * time.Millisecond)
	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, apperrors.ErrSerialNotProvided)
}

func TestPromptContextCancel(t *testing.T) {
	p := newPrompt(0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := p.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubmitWithoutRequest(t *testing.T) {
	p := newPrompt(time.Second)
	require.ErrorIs(t, p.Submit("SN1"), apperrors.ErrSerialNotRequested)
}

type readerFunc func(ctx context.Context) (string, error)

func (f readerFunc) GetSerialNumber(ctx context.Context) (string, error) { return f(ctx) }

func TestDeviceSource(t *testing.T) {
	d := NewDevice(readerFunc(func(context.Context) (string, error) { return "SN777", nil }), time.Second, logging.NewDiscard("test"))
	serial, err := d.Acquire(context.Background())
	require.NoError(t, err)
	require.Equal(t, "SN777", serial)

	d = NewDevice(readerFunc(func(context.Context) (string, error) { return "", errors.New("no tag") }), time.Second, logging.NewDiscard("test"))
	_, err = d.Acquire(context.Background())
	require.ErrorIs(t, err, apperrors.ErrSerialNotProvided)
}
