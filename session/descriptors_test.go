// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"testing"
)

func TestDescriptorSetBound(t *testing.T) {
	set := NewDescriptorSet(3)
	for i := 0; i < 2; i++ {
		if err := set.AddReadable(make(chan struct{})); err != nil {
			t.Fatalf("add readable %d: %v", i, err)
		}
	}
	if err := set.AddWritable(make(chan struct{})); err != nil {
		t.Fatalf("add writable: %v", err)
	}
	if err := set.AddReadable(make(chan struct{})); !errors.Is(err, ErrTooManyDescriptors) {
		t.Fatalf("overflow err = %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("len = %d", set.Len())
	}
	set.Reset()
	if set.Len() != 0 || set.Limit() != 3 {
		t.Fatalf("after reset len=%d limit=%d", set.Len(), set.Limit())
	}
}

func TestDescriptorSetIgnoresNil(t *testing.T) {
	set := NewDescriptorSet(1)
	if err := set.AddReadable(nil); err != nil {
		t.Fatalf("nil readable: %v", err)
	}
	if err := set.AddWritable(nil); err != nil {
		t.Fatalf("nil writable: %v", err)
	}
	if set.Len() != 0 {
		t.Fatalf("len = %d", set.Len())
	}
}
