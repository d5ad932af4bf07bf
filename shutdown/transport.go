// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package shutdown

import (
	"context"
	"net"
)

// Transport binds and connects named byte channels.
//
// Bind must fail with an error wrapping ErrBindConflict when another listener
// holds the address, and Connect must fail with an error wrapping
// ErrUnreachable when nothing is bound there.
type Transport interface {
	Bind(address string) (net.Listener, error)
	Connect(ctx context.Context, address string) (net.Conn, error)
}
