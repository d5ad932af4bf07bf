// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package procutil

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrInvalidPID is returned for PIDs that can never name a process.
var ErrInvalidPID = errors.New("invalid pid")

// IsProcessRunning checks if a process with the given PID is running.
// Zombies (exited but not yet reaped) are reported as not running.
// Any lookup failure is reported as not running.
func IsProcessRunning(pid int) bool {
	alive, err := CheckProcess(context.Background(), pid)
	return err == nil && alive
}

// CheckProcess reports whether pid names a live, non-zombie process.
// A pid that does not exist yields (false, nil); only genuine lookup
// failures are returned as errors.
func CheckProcess(ctx context.Context, pid int) (bool, error) {
	if pid <= 0 || pid > math.MaxInt32 {
		return false, fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}

	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return false, fmt.Errorf("check pid %d: %w", pid, err)
	}
	if !exists {
		return false, nil
	}

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return false, nil
		}
		return false, fmt.Errorf("open pid %d: %w", pid, err)
	}

	status, err := proc.StatusWithContext(ctx)
	if err != nil {
		// Status is unsupported on some platforms; existence is enough there.
		return true, nil
	}
	return !slices.Contains(status, process.Zombie), nil
}
