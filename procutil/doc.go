// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package procutil provides cross-platform OS process helpers used by the
// supervisor and the exit watcher.
//
// Liveness is answered by github.com/shirou/gopsutil/v4/process, which uses
// platform APIs (/proc on Linux, sysctl on macOS/BSD, OpenProcess on Windows)
// instead of os.FindProcess + Signal(0), which reports stale PIDs as alive on
// Windows and cannot tell a zombie from a running process on Unix.
//
// Forced termination targets the whole process group on Unix: children are
// started with Setpgid, so signalling -pid reaches the child and every
// descendant that did not move itself to another group. On Windows KillTree
// uses taskkill /T.
//
// # Example Usage
//
//	cmd := exec.Command("server")
//	procutil.ConfigureProcessGroup(cmd)
//	_ = cmd.Start()
//
//	if procutil.IsProcessRunning(cmd.Process.Pid) {
//	    _ = procutil.KillTree(cmd.Process.Pid)
//	}
package procutil
