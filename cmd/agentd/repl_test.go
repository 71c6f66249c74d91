package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentrunner/pkg/agent"
)

type echoChatter struct {
	sessions []string
}

func (e *echoChatter) ProcessMessage(_ context.Context, sessionID, text string) agent.Reply {
	e.sessions = append(e.sessions, sessionID)
	return agent.Reply{Reply: "echo: " + text}
}

func TestRunREPL(t *testing.T) {
	chat := &echoChatter{}
	var out bytes.Buffer

	err := runREPL(context.Background(), chat, strings.NewReader("hello\n\n  weather?  \n/quit\nignored\n"), &out)
	require.NoError(t, err)

	assert.Equal(t, "agent> echo: hello\nagent> echo: weather?\n", out.String())
	require.Len(t, chat.sessions, 2)
	assert.Equal(t, chat.sessions[0], chat.sessions[1], "one session per REPL")
}

func TestRunREPL_EOF(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runREPL(context.Background(), &echoChatter{}, strings.NewReader("hi"), &out))
	assert.Equal(t, "agent> echo: hi\n", out.String())
}

func TestRunREPL_ContextCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runREPL(ctx, &echoChatter{}, pr, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("REPL did not stop")
	}
}
