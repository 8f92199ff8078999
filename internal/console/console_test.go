package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForQuit(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantErr     error
		wantPrompts int
	}{
		{name: "quit at once", input: "q\n", wantPrompts: 1},
		{name: "quit without newline", input: "q", wantPrompts: 1},
		{name: "crlf", input: "q\r\n", wantPrompts: 1},
		{name: "other input re-prompts", input: "x\n\nquit\nQ\n q\nq\n", wantPrompts: 6},
		{name: "eof without quit", input: "hello\n", wantErr: ErrInputClosed, wantPrompts: 2},
		{name: "empty input", input: "", wantErr: ErrInputClosed, wantPrompts: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := WaitForQuit(context.Background(), strings.NewReader(tt.input), &out, Prompt)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, strings.Repeat(Prompt, tt.wantPrompts), out.String())
		})
	}
}

func TestWaitForQuitStopsOnContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()
	err := WaitForQuit(ctx, r, io.Discard, Prompt)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken")
}

func TestWaitForQuitPromptError(t *testing.T) {
	err := WaitForQuit(context.Background(), strings.NewReader("q\n"), failingWriter{}, Prompt)
	require.Error(t, err)
}

func TestIsQuit(t *testing.T) {
	assert.True(t, IsQuit("q"))
	assert.True(t, IsQuit("q\r"))
	assert.False(t, IsQuit("Q"))
	assert.False(t, IsQuit("q "))
	assert.False(t, IsQuit("quit"))
	assert.False(t, IsQuit(""))
}
