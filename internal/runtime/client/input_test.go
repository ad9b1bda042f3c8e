// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package clientruntime

import (
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/framegrace/texelshadow/framebuffer"
)

func TestHandleScreenEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   tcell.Event
		want bool
	}{
		{"q quits", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone), false},
		{"Q quits", tcell.NewEventKey(tcell.KeyRune, 'Q', tcell.ModNone), false},
		{"alt-q is ignored", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModAlt), true},
		{"ctrl-c quits", tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModNone), false},
		{"escape quits", tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone), false},
		{"other runes continue", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone), true},
		{"ctrl-l redraws", tcell.NewEventKey(tcell.KeyCtrlL, 0, tcell.ModNone), true},
		{"resize redraws", tcell.NewEventResize(80, 24), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := handleScreenEvent(tt.ev, nil); got != tt.want {
				t.Fatalf("handleScreenEvent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusTitle(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer screen.Fini()
	screen.SetSize(120, 4)
	presenter := framebuffer.NewPresenter(screen, framebuffer.NewSurface(16, 16), 8, 16)

	st := newStatus("/tmp/sim.sock", presenter)
	if got := st.Title(); got != "texelshadow /tmp/sim.sock [connecting]  q to quit" {
		t.Fatalf("initial title = %q", got)
	}
	st.OnConnectionResult(0)
	st.OnChannelConnected("rdpsnd")
	st.OnChannelConnected("cliprdr")
	if got := st.Title(); got != "texelshadow /tmp/sim.sock [connected] channels: cliprdr,rdpsnd  q to quit" {
		t.Fatalf("title = %q", got)
	}
	st.OnChannelDisconnected("rdpsnd")
	st.OnConnectionResult(3)
	if got := st.Title(); got != "texelshadow /tmp/sim.sock [connect failed (3)] channels: cliprdr  q to quit" {
		t.Fatalf("title = %q", got)
	}
	ch, _, _, _ := screen.GetContent(0, 0)
	if ch != 't' {
		t.Fatalf("title row starts with %q", ch)
	}
}
