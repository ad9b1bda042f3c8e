// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: session/descriptors.go
// Summary: Readiness handles gathered from collaborators each loop iteration.

package session

import (
	"errors"
	"fmt"
)

// ErrTooManyDescriptors is returned when collaborators offer more handles
// than the configured bound.
var ErrTooManyDescriptors = errors.New("session: descriptor set overflow")

// Handle is an opaque readiness token. A receive that succeeds means the
// owning source has data or capacity. A closed channel is permanently ready.
type Handle = <-chan struct{}

// DescriptorSet collects readable and writable handles for one wait.
type DescriptorSet struct {
	readable []Handle
	writable []Handle
	limit    int
}

// NewDescriptorSet returns an empty set bounded to limit handles in total.
func NewDescriptorSet(limit int) *DescriptorSet {
	return &DescriptorSet{
		readable: make([]Handle, 0, limit),
		writable: make([]Handle, 0, limit),
		limit:    limit,
	}
}

// AddReadable appends a handle signalling incoming data. Nil handles are
// ignored.
func (d *DescriptorSet) AddReadable(h Handle) error {
	if h == nil {
		return nil
	}
	if err := d.reserve(); err != nil {
		return err
	}
	d.readable = append(d.readable, h)
	return nil
}

// AddWritable appends a handle signalling pending outbound work. Nil
// handles are ignored.
func (d *DescriptorSet) AddWritable(h Handle) error {
	if h == nil {
		return nil
	}
	if err := d.reserve(); err != nil {
		return err
	}
	d.writable = append(d.writable, h)
	return nil
}

// Readable returns the readable handles in insertion order.
func (d *DescriptorSet) Readable() []Handle { return d.readable }

// Writable returns the writable handles in insertion order.
func (d *DescriptorSet) Writable() []Handle { return d.writable }

// Len returns the total number of handles.
func (d *DescriptorSet) Len() int { return len(d.readable) + len(d.writable) }

// Limit returns the handle bound.
func (d *DescriptorSet) Limit() int { return d.limit }

func (d *DescriptorSet) reserve() error {
	if d.Len() >= d.limit {
		return fmt.Errorf("%w: limit %d", ErrTooManyDescriptors, d.limit)
	}
	return nil
}

// Reset empties the set, keeping its capacity.
func (d *DescriptorSet) Reset() {
	clear(d.readable)
	clear(d.writable)
	d.readable = d.readable[:0]
	d.writable = d.writable[:0]
}
