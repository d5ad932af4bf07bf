// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package supervisor launches one child process and drives its lifecycle
// through an explicit state machine.
//
//	NotStarted ──Start──▶ Running ──Stop──▶ Stopping ──exit──▶ ExitedSuccessfully | ExitedWithError
//	     │                   │                  └────timeout──▶ ExitedKilled
//	     └──launch error──▶ StartFailed         │
//	                         └──unsolicited exit──▶ ExitedSuccessfully | ExitedWithError | ExitedUnexpectedly
//
// Transitions are computed by the pure function Transition and applied under
// a single mutex, so exit notifications, stop requests and kill timers never
// race on the state. Every transition is published, in order and without
// coalescing, to subscribers of Subscribe.
//
// Stop first asks the child to exit through the cooperative shutdown channel
// (package shutdown) and kills the process group only if the child has not
// exited when the timeout elapses. An exit observed before the kill decision
// always wins.
package supervisor
