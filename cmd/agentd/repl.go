package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"agentrunner/pkg/webui"
)

const prompt = "you> "

// runREPL reads one message per line from in and writes each reply to out, all in
// one session. The prompt is shown only when in is an interactive terminal.
func runREPL(ctx context.Context, chat webui.Chatter, in io.Reader, out io.Writer) error {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	sessionID := uuid.NewString()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	if interactive {
		fmt.Fprintf(out, "Session %s. Type a message, or /quit to exit.\n", sessionID)
	}
	for {
		if interactive {
			fmt.Fprint(out, prompt)
		}
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		}

		reply := chat.ProcessMessage(ctx, sessionID, line)
		fmt.Fprintf(out, "agent> %s\n", reply.Reply)
	}
}
