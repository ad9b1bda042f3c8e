// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/client/app.go
// Summary: Wires config, journal, engine, channels and presenter into one session.
// Usage: Called by cmd/texelshadow; returns when the session has terminated.
// Notes: Falls back to log-only output when stdout is not a terminal.

package clientruntime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/term"

	"github.com/framegrace/texelshadow/client"
	"github.com/framegrace/texelshadow/config"
	"github.com/framegrace/texelshadow/framebuffer"
	"github.com/framegrace/texelshadow/internal/journal"
	"github.com/framegrace/texelshadow/session"
)

// Options configures the client runtime.
type Options struct {
	Settings config.Settings
	PanicLog string
	// LogPath overrides the default log file under the config dir.
	LogPath string
	Verbose bool
	// Headless skips the terminal presenter.
	Headless bool
	// Screen replaces the terminal screen. Run initialises and finalises it.
	Screen tcell.Screen
	// Dial replaces the network dialer.
	Dial client.Dialer
	// Out receives the exit report. Defaults to stdout.
	Out io.Writer
}

var debugLog = log.New(io.Discard, "clientruntime: ", log.LstdFlags|log.Lmicroseconds)

// Run connects one session and blocks until it ends. Clean exits (stopped by
// the user or disconnected by the server) return nil.
func Run(opts Options) error {
	panicLogger := NewPanicLogger(opts.PanicLog)
	defer panicLogger.Recover("run")

	logFile, err := setupLogging(opts.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
	} else {
		defer func() {
			log.SetOutput(os.Stderr)
			logFile.Close()
		}()
	}
	setVerbose(opts.Verbose)
	defer setVerbose(false)

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	settings := opts.Settings
	jr := openJournal(settings)
	if jr != nil {
		defer jr.Close()
	}

	s, err := runSession(opts, settings, jr, panicLogger)
	if s == nil {
		return err
	}
	fmt.Fprintln(out, exitReport(s))
	if err != nil {
		return err
	}
	if !s.Cause().Clean() {
		return s.Err()
	}
	return nil
}

// runSession owns the screen for the lifetime of the session, so the exit
// report is printed after the terminal is restored.
func runSession(opts Options, settings config.Settings, jr *journal.Journal, panicLogger *PanicLogger) (*session.Session, error) {
	screen := opts.Screen
	if screen == nil && !opts.Headless {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			var err error
			if screen, err = tcell.NewScreen(); err != nil {
				return nil, fmt.Errorf("create screen failed: %w", err)
			}
		} else {
			log.Printf("stdout is not a terminal; running without presenter")
		}
	}
	var restore func()
	if screen != nil {
		if err := screen.Init(); err != nil {
			return nil, fmt.Errorf("init screen failed: %w", err)
		}
		var finiOnce sync.Once
		restore = func() { finiOnce.Do(screen.Fini) }
		defer restore()
		screen.HideCursor()
	}

	surface := framebuffer.NewSurface(settings.DesktopWidth, settings.DesktopHeight)
	engine := client.NewEngine(surface, client.EngineOptions{Dial: opts.Dial, Go: panicLogger.Go})
	channels := client.NewChannels(engine, client.LogHandler)

	var (
		presenter *framebuffer.Presenter
		flusher   session.Flusher = &logFlusher{}
	)
	if screen != nil {
		presenter = framebuffer.NewPresenter(screen, surface, settings.CellWidth, settings.CellHeight)
		flusher = presenter
	}
	st := newStatus(settings.Address, presenter)
	st.refresh()

	sessOpts := session.Options{
		Observers: []session.Observer{st},
		Flusher:   flusher,
		Go:        panicLogger.Go,
	}
	if jr != nil {
		sessOpts.Recorder = jr
	}
	s := session.New(settings, engine, channels, sessOpts)
	log.Printf("session %s connecting to %s %s", s.ID(), settings.Network, settings.Address)
	panicLogger.Attach(s.ID(), restore)

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	if err := s.Start(ctx); err != nil {
		return s, err
	}

	var events chan tcell.Event
	stopEvents := make(chan struct{})
	defer close(stopEvents)
	if screen != nil {
		events = make(chan tcell.Event, 32)
		panicLogger.Go("eventPoll", func() { pollEvents(screen, events, stopEvents) })
	}

	signals := ctx.Done()
	for {
		select {
		case <-s.Done():
			return s, nil
		case <-signals:
			log.Printf("signal received; stopping session %s", s.ID())
			signals = nil
			s.Stop()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !handleScreenEvent(ev, presenter) {
				s.Stop()
			}
		}
	}
}

func openJournal(settings config.Settings) *journal.Journal {
	if !settings.JournalEnabled {
		return nil
	}
	path := settings.JournalPath
	if path == "" {
		var err error
		if path, err = config.JournalPath(); err != nil {
			log.Printf("journal disabled: %v", err)
			return nil
		}
	}
	jr, err := journal.Open(path)
	if err != nil {
		log.Printf("journal disabled: %v", err)
		return nil
	}
	return jr
}

func exitReport(s *session.Session) string {
	stats := s.Stats()
	msg := fmt.Sprintf("session %s ended: %s", s.ID(), s.Cause())
	if err := s.Err(); err != nil && !errors.Is(err, session.ErrDisconnectRequested) {
		msg += fmt.Sprintf(" (%v)", err)
	}
	return msg + fmt.Sprintf(" frames=%d flushes=%d skipped=%d", stats.Frames, stats.Flushes, stats.Skipped)
}

func setVerbose(enable bool) {
	w := io.Discard
	if enable {
		w = log.Writer()
	}
	debugLog.SetOutput(w)
	client.SetDebugOutput(w)
	session.SetDebugOutput(w)
}

func setupLogging(path string) (*os.File, error) {
	if path == "" {
		var err error
		if path, err = config.LogPath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	log.SetOutput(file)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	return file, nil
}
