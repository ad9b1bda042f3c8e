// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: client/pubsub.go
// Summary: Observer registry shared by the engine and the channel subsystem.

package client

import (
	"sync"

	"github.com/framegrace/texelshadow/session"
)

// PubSub publishes lifecycle events to subscribed observers.
type PubSub struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]session.Observer
}

// NewPubSub returns an empty registry.
func NewPubSub() *PubSub {
	return &PubSub{subs: make(map[int]session.Observer)}
}

// Subscribe registers obs and returns a func removing it. The returned func
// is safe to call more than once.
func (p *PubSub) Subscribe(obs session.Observer) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = obs
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Len returns the number of subscribers.
func (p *PubSub) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

func (p *PubSub) snapshot() []session.Observer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]session.Observer, 0, len(p.subs))
	for _, obs := range p.subs {
		out = append(out, obs)
	}
	return out
}

func (p *PubSub) PublishConnectionResult(code uint32) {
	for _, obs := range p.snapshot() {
		obs.OnConnectionResult(code)
	}
}

func (p *PubSub) PublishChannelConnected(name string) {
	for _, obs := range p.snapshot() {
		obs.OnChannelConnected(name)
	}
}

func (p *PubSub) PublishChannelDisconnected(name string) {
	for _, obs := range p.snapshot() {
		obs.OnChannelDisconnected(name)
	}
}
