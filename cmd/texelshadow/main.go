// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: cmd/texelshadow/main.go
// Summary: Shadow client command: connects one session and shows it in the terminal.
// Usage: `texelshadow -address /tmp/texelshadow.sock`, `texelshadow -history 10`, `texelshadow -probe`.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/framegrace/texelshadow/client"
	"github.com/framegrace/texelshadow/config"
	"github.com/framegrace/texelshadow/internal/journal"
	clientrt "github.com/framegrace/texelshadow/internal/runtime/client"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("texelshadow", flag.ContinueOnError)

	configPath := fs.String("config", "", "Config file (default: <config dir>/texelshadow/texelshadow.json)")
	network := fs.String("network", "", "Network to dial: unix or tcp")
	address := fs.String("address", "", "Server address or socket path")
	width := fs.Int("width", 0, "Requested desktop width")
	height := fs.Int("height", 0, "Requested desktop height")
	channels := fs.String("channels", "", "Comma separated side channels to request")
	headless := fs.Bool("headless", false, "Run without the terminal presenter")
	verbose := fs.Bool("verbose", false, "Log protocol and session tracing")
	panicLog := fs.String("panic-log", "", "File to append panic stack traces")
	history := fs.Int("history", 0, "Print the last N journaled sessions and exit")
	probe := fs.Bool("probe", false, "Check that the server answers the handshake and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	settings, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	if *network != "" {
		settings.Network = *network
	}
	if *address != "" {
		settings.Address = *address
	}
	if *width > 0 {
		settings.DesktopWidth = *width
	}
	if *height > 0 {
		settings.DesktopHeight = *height
	}
	if *channels != "" {
		settings = settings.WithChannels(splitList(*channels)...)
	}

	if *history > 0 {
		return printHistory(os.Stdout, settings, *history)
	}
	if *probe {
		welcome, err := client.Prober{Timeout: settings.HandshakeTimeout}.Probe(context.Background(), settings.Network, settings.Address)
		if err != nil {
			return fmt.Errorf("probe %s %s: %w", settings.Network, settings.Address, err)
		}
		fmt.Printf("%s %s: %s is up\n", settings.Network, settings.Address, welcome.ServerName)
		return nil
	}

	return clientrt.Run(clientrt.Options{
		Settings: settings,
		PanicLog: *panicLog,
		Verbose:  *verbose,
		Headless: *headless,
	})
}

func loadSettings(path string) (config.Settings, error) {
	if path == "" {
		if err := config.Err(); err != nil {
			return config.Settings{}, fmt.Errorf("load config: %w", err)
		}
		return config.Snapshot(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return config.Settings{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return config.FromConfig(cfg), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printHistory(w io.Writer, settings config.Settings, limit int) error {
	path := settings.JournalPath
	if path == "" {
		var err error
		if path, err = config.JournalPath(); err != nil {
			return err
		}
	}
	jr, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer jr.Close()
	entries, err := jr.Recent(limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tADDRESS\tDESKTOP\tDURATION\tCAUSE\tFRAMES\tFLUSHES\tERROR")
	for _, e := range entries {
		duration, cause := "-", "running"
		if !e.Running() {
			duration = e.Ended.Sub(e.Started).Round(time.Millisecond).String()
			cause = e.Cause
		}
		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%s\t%s\t%d\t%d\t%s\n",
			e.Started.Format(time.DateTime), e.Address, e.Width, e.Height,
			duration, cause, e.Stats.Frames, e.Stats.Flushes, e.Error)
	}
	return tw.Flush()
}
