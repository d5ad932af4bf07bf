// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package shutdown

import (
	"errors"
	"strconv"
)

// AddressPrefix is the fixed prefix of every shutdown channel address.
const AddressPrefix = "supervisor-shutdown"

// signalFrame is the only message ever sent over a shutdown channel.
var signalFrame = []byte("SHUTDOWN\n")

var (
	// ErrBindConflict is returned when a listener is already bound to the address.
	ErrBindConflict = errors.New("shutdown channel already bound")
	// ErrUnreachable is returned when no listener accepts connections at the address.
	ErrUnreachable = errors.New("shutdown channel unreachable")
	// ErrClosed is returned by operations on a closed listener or transport.
	ErrClosed = errors.New("shutdown channel closed")
)

// Address returns the channel address owned by the process with the given pid.
func Address(pid int) string {
	return AddressPrefix + "-" + strconv.Itoa(pid)
}
