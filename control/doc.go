// Copyright (c) 2026
// Author: momentics <momentics@gmail.com>
//
// Process-wide diagnostics layer shared by the reactor and the socket
// layer: a leveled log facility with an optional user callback, and a
// debug probe registry for runtime introspection.
package control
