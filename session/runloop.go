// Copyright © 2025 Texelation contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: session/runloop.go
// Summary: Event loop multiplexing collaborator readiness with the stop signal.

package session

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

func (s *Session) run() {
	cause, err := s.loop()
	s.terminate(cause, err)
}

func (s *Session) loop() (ExitCause, error) {
	set := NewDescriptorSet(s.settings.MaxDescriptors)
	timer := time.NewTimer(s.settings.WaitTimeout)
	defer timer.Stop()

	for {
		if s.stopRequested() {
			return ExitStopped, nil
		}

		set.Reset()
		if err := s.protocol.CollectReadiness(set); err != nil {
			return collectFailure("transport", err)
		}
		if err := s.channels.CollectReadiness(set); err != nil {
			return collectFailure("channel", err)
		}

		timer.Reset(s.settings.WaitTimeout)
		woken := s.wait(set, timer.C)
		if s.stopRequested() {
			return ExitStopped, nil
		}
		s.stats.iterations.Add(1)
		debugLog.Printf("session %s: woke (%s) with %d descriptors", s.id, woken, set.Len())

		if cause, err := s.dispatch(); cause != ExitNone {
			return cause, err
		}
		if s.stopRequested() {
			return ExitStopped, nil
		}
		if cause, err := s.housekeep(); cause != ExitNone {
			return cause, err
		}
	}
}

type wakeReason string

const (
	wakeStop    wakeReason = "stop"
	wakeTimeout wakeReason = "timeout"
	wakeReady   wakeReason = "ready"
)

// wait blocks until any handle in set is ready, stop is signalled or the
// timer fires.
func (s *Session) wait(set *DescriptorSet, timeout <-chan time.Time) wakeReason {
	cases := make([]reflect.SelectCase, 0, 2+set.Len())
	cases = append(cases,
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(s.stopCh)},
		reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timeout)},
	)
	for _, h := range set.Readable() {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(h)})
	}
	for _, h := range set.Writable() {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(h)})
	}
	chosen, _, _ := reflect.Select(cases)
	switch chosen {
	case 0:
		return wakeStop
	case 1:
		return wakeTimeout
	}
	return wakeReady
}

// dispatch runs one processing pass in the fixed order: transport readable,
// transport writable, disconnect check, channels readable, channels writable.
// A stop requested by any step ends the pass before the next one.
func (s *Session) dispatch() (ExitCause, error) {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"transport read", s.protocol.ProcessReadable},
		{"transport write", s.protocol.ProcessWritable},
		{"disconnect check", s.checkDisconnect},
		{"channel read", s.channels.ProcessReadable},
		{"channel write", s.channels.ProcessWritable},
	}
	for _, step := range steps {
		if s.stopRequested() {
			return ExitStopped, nil
		}
		if err := step.fn(); err != nil {
			return classify(step.name, err)
		}
	}
	return ExitNone, nil
}

func (s *Session) checkDisconnect() error {
	if s.protocol.ShallDisconnect() {
		return ErrDisconnectRequested
	}
	return nil
}

func (s *Session) housekeep() (ExitCause, error) {
	now := s.now()
	if hk, ok := s.protocol.(Housekeeper); ok {
		if err := hk.Housekeep(now); err != nil {
			return classify("transport housekeeping", err)
		}
	}
	if hk, ok := s.channels.(Housekeeper); ok {
		if err := hk.Housekeep(now); err != nil {
			return classify("channel housekeeping", err)
		}
	}
	return ExitNone, nil
}

// checkDescriptorBudget runs one collection pass outside the loop so an
// oversized readiness set is reported before the session is connected.
// Other collection errors are left for the loop to classify.
func (s *Session) checkDescriptorBudget() error {
	set := NewDescriptorSet(s.settings.MaxDescriptors)
	if err := s.protocol.CollectReadiness(set); errors.Is(err, ErrTooManyDescriptors) {
		_, err = collectFailure("transport", err)
		return err
	}
	if err := s.channels.CollectReadiness(set); errors.Is(err, ErrTooManyDescriptors) {
		_, err = collectFailure("channel", err)
		return err
	}
	return nil
}

// collectFailure ends the loop. Exceeding MaxDescriptors is a configuration
// error, anything else a fault.
func collectFailure(source string, err error) (ExitCause, error) {
	err = fmt.Errorf("session: collect %s descriptors: %w", source, err)
	if errors.Is(err, ErrTooManyDescriptors) {
		return ExitConfig, err
	}
	return ExitFault, err
}

func classify(step string, err error) (ExitCause, error) {
	if errors.Is(err, ErrDisconnectRequested) {
		return ExitDisconnected, nil
	}
	return ExitFault, fmt.Errorf("session: %s: %w", step, err)
}
