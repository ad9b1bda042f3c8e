// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: internal/runtime/client/input.go
// Summary: Terminal event handling for the session viewer.

package clientruntime

import (
	"log"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/texelshadow/framebuffer"
)

// handleScreenEvent reacts to one terminal event. It returns false when the
// user asked to quit.
func handleScreenEvent(ev tcell.Event, presenter *framebuffer.Presenter) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyCtrlC, tcell.KeyEscape:
			return false
		case tcell.KeyCtrlL:
			redraw(presenter)
		case tcell.KeyRune:
			if r := ev.Rune(); (r == 'q' || r == 'Q') && ev.Modifiers() == 0 {
				log.Printf("quit requested from keyboard")
				return false
			}
		}
	case *tcell.EventResize:
		redraw(presenter)
	}
	return true
}

func redraw(presenter *framebuffer.Presenter) {
	if presenter == nil {
		return
	}
	if err := presenter.Redraw(); err != nil {
		debugLog.Printf("redraw: %v", err)
	}
}

// pollEvents forwards screen events until stop closes or the screen is
// finalized.
func pollEvents(screen tcell.Screen, events chan<- tcell.Event, stop <-chan struct{}) {
	defer close(events)
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}
		select {
		case events <- ev:
		case <-stop:
			return
		}
	}
}
