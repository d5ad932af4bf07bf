// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package procwatch raises a single "exited" notification for a process,
// whatever state the process was in when watching began.
//
// A Watcher is attached to a Source, which exposes two capabilities: an
// immediate liveness check and a subscription to the exit event. Watch checks
// liveness before and after subscribing, so a process that already exited, or
// a pid that never existed, is reported as exited right away instead of
// waiting on a notification that will never come.
//
// CmdSource watches a child started through os/exec and reports its real exit
// code. PIDSource watches an arbitrary pid by polling; its exit code is
// indeterminate (ExitCodeUnknown).
package procwatch
