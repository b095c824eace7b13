package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 16*time.Second, p.Delay(4))
	// Capped at MaxDelay from here on.
	assert.Equal(t, 30*time.Second, p.Delay(5))
	assert.Equal(t, 30*time.Second, p.Delay(20))
	assert.Equal(t, 30*time.Second, p.Delay(1000))
}

func TestRetryPolicy_DelayCustom(t *testing.T) {
	p := RetryPolicy{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     35 * time.Millisecond,
		Multiplier:   2,
		MaxRetries:   5,
	}

	assert.Equal(t, 10*time.Millisecond, p.Delay(0))
	assert.Equal(t, 20*time.Millisecond, p.Delay(1))
	assert.Equal(t, 35*time.Millisecond, p.Delay(2))
}

func TestRetryPolicy_ZeroValueUsesDefaults(t *testing.T) {
	var p RetryPolicy
	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
}

func TestRetryPolicy_ExecuteRetriesTransient(t *testing.T) {
	p := RetryPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxRetries:   3,
	}

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: connection refused", ErrTransportUnavailable)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_ExecuteBudgetExhausted(t *testing.T) {
	p := RetryPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxRetries:   2,
	}

	calls := 0
	cause := fmt.Errorf("%w: spawn failed", ErrTransportUnavailable)
	err := p.Execute(context.Background(), func() error {
		calls++
		return cause
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportUnavailable)
	// Initial attempt plus MaxRetries retries.
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_ExecuteNeverRetriesServerErrors(t *testing.T) {
	p := RetryPolicy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		MaxRetries:   5,
	}

	calls := 0
	err := p.Execute(context.Background(), func() error {
		calls++
		return &MCPError{Code: -32602, Message: "invalid params"}
	})
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, -32602, mcpErr.Code)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_ExecuteStopsOnContextCancel(t *testing.T) {
	p := RetryPolicy{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
		MaxRetries:   10,
	}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := p.Execute(ctx, func() error {
		calls++
		return fmt.Errorf("%w: still down", ErrTransportUnavailable)
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 2)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(fmt.Errorf("%w: boom", ErrTransportUnavailable)))
	assert.True(t, isTransient(fmt.Errorf("%w: tools/call after 5s", ErrToolCallTimeout)))
	assert.False(t, isTransient(&MCPError{Code: -32000, Message: "x"}))
	assert.False(t, isTransient(fmt.Errorf("%w: bad frame", ErrProtocolViolation)))
	assert.False(t, isTransient(errors.New("unclassified")))
}
