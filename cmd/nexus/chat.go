package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nexus/internal/types"
)

// runChat is the interactive loop. Ctrl+C or /exit leaves.
func (a *app) runChat(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("nexus - type a message, /help for commands, /exit to leave")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		res := a.router.Handle(ctx, defaultChatID, line)
		printResult(os.Stdout, res, verbose)
	}
}

// runOnce processes the joined arguments as one message.
func (a *app) runOnce(ctx context.Context, args []string) error {
	res := a.router.Handle(ctx, defaultChatID, strings.Join(args, " "))
	printResult(os.Stdout, res, verbose)
	if res.IsError() {
		return fmt.Errorf("%s", res.Reply)
	}
	return nil
}

func printResult(w io.Writer, res types.RouterResult, showSteps bool) {
	if showSteps {
		printSteps(w, res.Steps)
	}
	switch {
	case res.IsError():
		fmt.Fprintf(w, "error: %s\n", res.Reply)
	case res.Action != nil:
		fmt.Fprintf(w, "done: %s", res.Action.Name)
		if p, ok := res.Action.Params["path"]; ok {
			fmt.Fprintf(w, " (%s)", p)
		}
		fmt.Fprintln(w)
	default:
		fmt.Fprintln(w, res.Reply)
	}
}

// printSteps renders the per-message flow log, one line per event.
func printSteps(w io.Writer, steps []types.StepEvent) {
	for _, s := range steps {
		marker := "🔄"
		switch s.Status {
		case types.StepSuccess:
			marker = "✓"
		case types.StepError:
			marker = "✗"
		}
		fmt.Fprintf(w, "%s %s.%s\n", marker, s.Agent, s.Action)
	}
}
