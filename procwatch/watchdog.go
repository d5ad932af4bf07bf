// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procwatch

import "context"

// ExitWhenParentExits calls onExit once when the process ppid goes away.
// Children use it with the pid their supervisor passed on the command line,
// typically calling os.Exit from onExit. A ppid that is already gone fires
// immediately.
func ExitWhenParentExits(ctx context.Context, ppid int, onExit func(Exit), opts ...PIDOption) *Watcher {
	w := Watch(ctx, NewPIDSource(ppid, opts...))
	go func() {
		select {
		case <-w.Done():
			exit, _ := w.Exit()
			onExit(exit)
		case <-ctx.Done():
		}
	}()
	return w
}
