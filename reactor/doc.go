// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package reactor bridges a poll-style readiness multiplexer into a
// blocking, goroutine-friendly wait model.
//
// Callers issue a non-blocking transport attempt; when it would block
// they suspend on one of the four wait operations (readable/writable,
// with or without a timeout) and retry once resumed. Internally a
// dedicated poll goroutine drives the multiplexer with a bounded wait
// and a slotted timing wheel, and every mutation of the shared
// bookkeeping runs on a single strand, so the hot structures need no
// locks.
package reactor
