package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/srg/ancs/internal/ancs"
	"github.com/srg/ancs/internal/engine"
)

// actionTarget is the part of a session the prompt drives.
type actionTarget interface {
	PerformAction(uid uint32, action ancs.ActionID) error
	RetryPendingApps() error
	Stats() engine.Stats
}

// actionPrompt reads commands while notifications stream to the same terminal.
type actionPrompt struct {
	target actionTarget
	out    io.Writer
}

// run reads lines until quit, EOF, Ctrl+C or ctx cancellation, then calls cancel.
func (p *actionPrompt) run(ctx context.Context, rl *readline.Instance, cancel context.CancelFunc) {
	defer cancel()

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			// readline.ErrInterrupt on Ctrl+C, io.EOF on Ctrl+D or Close
			return
		}
		if quit := p.execute(line); quit {
			return
		}
	}
}

// execute runs one command line and reports whether the prompt should end.
func (p *actionPrompt) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch cmd := strings.ToLower(fields[0]); cmd {
	case "quit", "exit", "q":
		return true

	case "help", "?":
		p.printHelp()

	case "positive", "pos", "+", "negative", "neg", "-":
		if len(fields) != 2 {
			fmt.Fprintf(p.out, "usage: %s <uid>\n", cmd)
			return false
		}
		uid, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			fmt.Fprintf(p.out, "invalid uid %q\n", fields[1])
			return false
		}
		action := ancs.ActionPositive
		if strings.HasPrefix(cmd, "neg") || cmd == "-" {
			action = ancs.ActionNegative
		}
		if err := p.target.PerformAction(uint32(uid), action); err != nil {
			fmt.Fprintf(p.out, "%s action on #%d failed: %s\n", strings.ToLower(action.String()), uid, FormatUserError(err))
			return false
		}
		fmt.Fprintf(p.out, "%s action sent for #%d\n", strings.ToLower(action.String()), uid)

	case "retry":
		if err := p.target.RetryPendingApps(); err != nil {
			fmt.Fprintf(p.out, "retry failed: %s\n", FormatUserError(err))
			return false
		}
		fmt.Fprintln(p.out, "pending app lookups re-sent")

	case "stats":
		st := p.target.Stats()
		fmt.Fprintf(p.out, "notifications: %d\napps cached:   %d\napps pending:  %d\nqueued:        %d\n",
			st.Notifications, st.Apps, st.QueuedApps, st.Queued)

	default:
		fmt.Fprintf(p.out, "unknown command %q (type 'help')\n", fields[0])
	}
	return false
}

func (p *actionPrompt) printHelp() {
	fmt.Fprint(p.out, `Commands:
  positive <uid>   Perform the positive action (e.g. answer, open)
  negative <uid>   Perform the negative action (e.g. decline, dismiss)
  retry            Re-send app name lookups that failed
  stats            Show tracked notifications and apps
  help             Show this help
  quit             Stop listening
`)
}
