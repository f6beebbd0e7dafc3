// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>

// Package socket layers packet-oriented sockets and acceptors on top of
// the reactor. Every operation follows the same discipline: try the
// non-blocking syscall, and when it reports would-block, suspend on the
// reactor until the descriptor is ready, then retry. Timeouts and
// transport errors surfaced by the reactor are terminal for the attempt.
package socket
