// Copyright 2026 The Quark Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// Fataler is the subset of testing.TB the helpers need.
type Fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// pollInterval is how often RequireEventually re-evaluates its
// condition.
const pollInterval = time.Millisecond

// RequireReceive reads one value from ch within timeout, or fails the
// test. A closed channel is a failure.
//
//	mask := testutil.RequireReceive(t, events, 5*time.Second, "readable on fd %d", fd)
func RequireReceive[T any](t Fataler, ch <-chan T, timeout time.Duration, what ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while waiting for %s", describe(what))
		}
		return v
	case <-timer.C:
		t.Fatalf("no value after %v: %s", timeout, describe(what))
	}
	panic("unreachable")
}

// RequireClosed waits until ch is closed or delivers a value, or fails
// the test after timeout.
func RequireClosed(t Fataler, ch <-chan struct{}, timeout time.Duration, what ...any) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("channel still open after %v: %s", timeout, describe(what))
	}
}

// RequireEventually polls condition until it returns true, or fails the
// test after timeout. Use it for state a pump publishes without a
// channel, such as a latched ring flag.
//
//	testutil.RequireEventually(t, buffer.ReadClosed, 5*time.Second, "peer close on fd %d", fd)
func RequireEventually(t Fataler, condition func() bool, timeout time.Duration, what ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met after %v: %s", timeout, describe(what))
		}
		time.Sleep(pollInterval)
	}
}

// describe renders the optional trailing arguments of a helper: nothing,
// a single value, or a format string and its operands.
func describe(what []any) string {
	switch {
	case len(what) == 0:
		return "(unnamed)"
	case len(what) == 1:
		return fmt.Sprint(what[0])
	}
	if format, ok := what[0].(string); ok {
		return fmt.Sprintf(format, what[1:]...)
	}
	return fmt.Sprint(what...)
}
