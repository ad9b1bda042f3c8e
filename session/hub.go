// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: session/hub.go
// Summary: Fans lifecycle notifications out to registered observers.

package session

import (
	"log"
	"runtime/debug"
	"sync"
)

// Hub is an Observer that forwards every event to its members. A panicking
// observer is logged and skipped; the others still run.
type Hub struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewHub returns a hub seeded with observers.
func NewHub(observers ...Observer) *Hub {
	h := &Hub{}
	for _, obs := range observers {
		h.Add(obs)
	}
	return h
}

// Add registers obs. Nil observers are ignored.
func (h *Hub) Add(obs Observer) {
	if obs == nil {
		return
	}
	h.mu.Lock()
	h.observers = append(h.observers, obs)
	h.mu.Unlock()
}

// Len returns the number of registered observers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

func (h *Hub) OnConnectionResult(code uint32) {
	log.Printf("session: connection result %d", code)
	h.each("connection-result", func(o Observer) { o.OnConnectionResult(code) })
}

func (h *Hub) OnChannelConnected(name string) {
	log.Printf("session: channel %s connected", name)
	h.each("channel-connected", func(o Observer) { o.OnChannelConnected(name) })
}

func (h *Hub) OnChannelDisconnected(name string) {
	log.Printf("session: channel %s disconnected", name)
	h.each("channel-disconnected", func(o Observer) { o.OnChannelDisconnected(name) })
}

func (h *Hub) each(event string, fn func(Observer)) {
	h.mu.RLock()
	observers := append([]Observer(nil), h.observers...)
	h.mu.RUnlock()
	for _, obs := range observers {
		h.call(event, obs, fn)
	}
}

func (h *Hub) call(event string, obs Observer, fn func(Observer)) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: observer panic on %s: %v\n%s", event, r, debug.Stack())
		}
	}()
	fn(obs)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are no-ops.
type ObserverFuncs struct {
	ConnectionResult    func(code uint32)
	ChannelConnected    func(name string)
	ChannelDisconnected func(name string)
}

func (f ObserverFuncs) OnConnectionResult(code uint32) {
	if f.ConnectionResult != nil {
		f.ConnectionResult(code)
	}
}

func (f ObserverFuncs) OnChannelConnected(name string) {
	if f.ChannelConnected != nil {
		f.ChannelConnected(name)
	}
}

func (f ObserverFuncs) OnChannelDisconnected(name string) {
	if f.ChannelDisconnected != nil {
		f.ChannelDisconnected(name)
	}
}
