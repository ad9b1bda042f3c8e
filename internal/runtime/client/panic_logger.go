// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/client/panic_logger.go
// Summary: Panic capture for goroutines spawned by the client runtime.
// Usage: Run defers Recover and hands Go to the engine and session.
// Notes: The terminal is restored before the report is printed so the stack
// is readable after a crash inside the presenter.

package clientruntime

import (
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"
)

// PanicLogger reports the first panic of any guarded goroutine and exits.
type PanicLogger struct {
	path string
	exit func(code int)

	mu      sync.Mutex
	session string
	restore func()
	fired   bool
}

// NewPanicLogger appends reports to path when it is non-empty.
func NewPanicLogger(path string) *PanicLogger {
	return &PanicLogger{path: path, exit: os.Exit}
}

// Attach records the session id for reports and a restore hook that puts
// the terminal back. Either may be zero.
func (p *PanicLogger) Attach(sessionID string, restore func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = sessionID
	p.restore = restore
}

// Recover must be deferred directly by the goroutine it guards.
func (p *PanicLogger) Recover(where string) {
	r := recover()
	if r == nil {
		return
	}
	p.report(where, r, debug.Stack())
	p.exit(2)
}

// Go runs fn on a new goroutine guarded by Recover. Its signature matches the
// spawn hooks of client.EngineOptions and session.Options.
func (p *PanicLogger) Go(name string, fn func()) {
	go func() {
		defer p.Recover(name)
		fn()
	}()
}

func (p *PanicLogger) report(where string, r any, stack []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fired {
		return
	}
	p.fired = true
	if p.restore != nil {
		p.restore()
	}

	session := p.session
	if session == "" {
		session = "-"
	}
	msg := fmt.Sprintf("panic in %s (session %s): %v\n%s", where, session, r, stack)
	log.Print(msg)
	fmt.Fprintln(os.Stderr, msg)
	if p.path == "" {
		return
	}
	f, err := os.OpenFile(p.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		log.Printf("panic: unable to write %s: %v", p.path, err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "[%s] %s\n", time.Now().Format(time.RFC3339Nano), msg)
}
