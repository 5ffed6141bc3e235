// File: internal/browser/playwright_test.go
package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyDriverError(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want error
	}{
		{"navigation timeout", "Timeout 30000ms exceeded.", ErrTimeout},
		{"lowercase timeout", "timeout while waiting for selector", ErrTimeout},
		{"target closed", "Target closed", ErrTargetClosed},
		{"page closed", "page has been closed", ErrTargetClosed},
		{"crashed target", "Target page, context or browser has been closed", ErrTargetClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyDriverError(errors.New(tc.in))
			require.ErrorIs(t, got, tc.want)
			assert.Contains(t, got.Error(), tc.in, "the original message must survive classification")
		})
	}
}

func TestClassifyDriverErrorPassThrough(t *testing.T) {
	assert.NoError(t, classifyDriverError(nil))

	other := errors.New("net::ERR_CONNECTION_REFUSED")
	got := classifyDriverError(other)
	assert.Same(t, other, got)
	assert.NotErrorIs(t, got, ErrTimeout)
	assert.NotErrorIs(t, got, ErrTargetClosed)
}

func TestConsoleBufferBounded(t *testing.T) {
	p := &pwPage{}
	for i := 0; i < consoleBufferCap+50; i++ {
		p.appendConsole(ConsoleMessage{Type: "log", Text: "entry"})
	}
	logs := p.ConsoleLogs()
	assert.Len(t, logs, consoleBufferCap)
}
