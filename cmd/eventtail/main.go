// Package main is a debug console for one subject's verification event
// stream. It prints every event as it arrives, prints parse errors instead
// of dropping them, and dumps the most recent events on exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"eudi-storefront/internal/platform/logger"
	"eudi-storefront/internal/verification/events"
)

func main() {
	os.Exit(run())
}

func run() int {
	base := flag.String("url", "http://localhost:8080", "Storefront base URL")
	subject := flag.String("subject", "", "Subject id whose stream to follow (required)")
	history := flag.Int("history", events.DefaultBufferSize, "Number of recent events kept for the exit dump")
	asJSON := flag.Bool("json", false, "Print each event as one JSON line")
	dump := flag.Bool("dump", true, "Print the buffered history on exit")
	logLevel := flag.String("log-level", "warn", "Client log level")
	flag.Parse()

	if strings.TrimSpace(*subject) == "" {
		fmt.Fprintln(os.Stderr, "eventtail: -subject is required")
		flag.Usage()
		return 2
	}

	streamURL := strings.TrimRight(*base, "/") + "/verifications/" + url.PathEscape(*subject) + "/events"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub := events.Subscribe(ctx, streamURL, events.WithClientLogger(logger.New(*logLevel)))
	defer sub.Close()

	buf := events.NewBuffer(*history)
	exit := tail(sub.C, buf, os.Stdout, *asJSON)

	if *dump {
		printHistory(os.Stderr, buf)
	}
	return exit
}

// tail prints messages until the subscription ends. It returns the process
// exit code: 1 when the stream failed, 0 otherwise.
func tail(msgs <-chan events.Message, buf *events.Buffer, w io.Writer, asJSON bool) int {
	for m := range msgs {
		buf.Add(m)
		switch {
		case m.IsParseError():
			fmt.Fprintf(w, "%s PARSE ERROR %v\n", time.Now().UTC().Format(time.RFC3339), m.Err)
		case m.Err != nil:
			fmt.Fprintf(w, "%s STREAM ERROR %v\n", time.Now().UTC().Format(time.RFC3339), m.Err)
			if errors.Is(m.Err, events.ErrStream) {
				return 1
			}
		default:
			printEvent(w, m.Event, asJSON)
		}
	}
	return 0
}

func printEvent(w io.Writer, e *events.Event, asJSON bool) {
	if asJSON {
		line, err := json.Marshal(e)
		if err != nil {
			slog.Warn("failed to encode event", "error", err)
			return
		}
		fmt.Fprintln(w, string(line))
		return
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", e.Payload))
	}
	fmt.Fprintf(w, "%s [%s] %s %s\n", e.At.UTC().Format(time.RFC3339), e.Channel, e.Type, payload)
}

func printHistory(w io.Writer, buf *events.Buffer) {
	msgs := buf.Snapshot()
	fmt.Fprintf(w, "--- last %d of at most %d events ---\n", len(msgs), buf.Cap())
	for _, m := range msgs {
		if m.Event != nil {
			fmt.Fprintf(w, "%s %s\n", m.ID, m.Event.Type)
			continue
		}
		fmt.Fprintf(w, "%s error: %v\n", m.ID, m.Err)
	}
}
