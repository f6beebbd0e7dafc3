//go:build linux

// File: socket/options.go
// Author: momentics <momentics@gmail.com>
//
// String-keyed socket options applied in stages: pre-bind options before
// bind/connect, post options once the descriptor is connected. Unknown
// keys are rejected up front so configuration typos fail loudly.

package socket

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"
)

// Options maps option names to string values, mirroring the
// "key=value" configuration surface of the transport library.
type Options map[string]string

type optionStage int

const (
	stagePreBind optionStage = iota
	stagePost
)

type optionSetter struct {
	stage optionStage
	apply func(fd int, value string) error
}

var optionSetters = map[string]optionSetter{
	"reuseaddr": {stagePreBind, func(fd int, v string) error {
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(v))
	}},
	"rcvbuf": {stagePreBind, func(fd int, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
	}},
	"sndbuf": {stagePreBind, func(fd int, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
	}},
	"ttl": {stagePreBind, func(fd int, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TTL, n)
	}},
	"tos": {stagePreBind, func(fd int, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, n)
	}},
	"nodelay": {stagePost, func(fd int, v string) error {
		return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(v))
	}},
	"linger": {stagePost, func(fd int, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		return unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: int32(n)})
	}},
}

// Validate reports the first unrecognized option key, if any.
func (o Options) Validate() error {
	for k := range o {
		if _, ok := optionSetters[k]; !ok {
			return fmt.Errorf("unknown socket option %q", k)
		}
	}
	return nil
}

func (o Options) apply(fd int, stage optionStage) error {
	for k, v := range o {
		setter, ok := optionSetters[k]
		if !ok {
			return fmt.Errorf("unknown socket option %q", k)
		}
		if setter.stage != stage {
			continue
		}
		if err := setter.apply(fd, v); err != nil {
			return fmt.Errorf("socket option %s=%s: %w", k, v, err)
		}
	}
	return nil
}

func boolToInt(v string) int {
	switch v {
	case "1", "true", "on", "yes":
		return 1
	default:
		return 0
	}
}
