package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iyunix/go-chatwidget/internal/client"
	"github.com/iyunix/go-chatwidget/internal/protocol"
)

func runSendCommand(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return send(ctx, c, strings.Join(args, " "), cmd.OutOrStdout())
}

func runChatCommand(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if creds, ok := c.Credentials(); ok {
		fmt.Fprintf(out, "resuming chat %s\n", creds.ChatID)
	}

	// Ctrl-C while a reply streams cancels it; at the prompt it exits.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-interrupts:
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-interrupts:
				c.Cancel()
			case <-done:
			}
		}()
		err := send(cmd.Context(), c, line, out)
		close(done)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// send streams one reply to out. Errors already reported through OnError
// are not returned a second time.
func send(ctx context.Context, c *client.Client, content string, out io.Writer) error {
	reported := false
	err := c.Send(ctx, content, client.Handlers{
		OnChunk: func(text string) { fmt.Fprint(out, text) },
		OnDone:  func(string) { fmt.Fprintln(out) },
		OnSpecialEvent: func(ev protocol.Event) {
			if ev.Type == protocol.EventRequestEmail {
				var details protocol.EmailRequestDetails
				_ = json.Unmarshal(ev.Details, &details)
				fmt.Fprintf(out, "[%s] reply with your email address to continue by email\n", details.Subject)
				return
			}
			fmt.Fprintf(out, "[%s]\n", ev.Type)
		},
		OnError: func(code, message string) {
			reported = true
			fmt.Fprintf(out, "\n[%s] %s\n", code, message)
		},
	})
	if reported {
		return nil
	}
	return err
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}
