// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package testutil provides testing helpers shared by procsup packages.
//
// The main facility is the helper-process harness: a test binary re-executes
// itself as a child with a scripted behavior (print and exit, exit with a
// code, honor or ignore cooperative shutdown). Packages opt in from TestMain:
//
//	func TestMain(m *testing.M) {
//	    testutil.RunHelperIfRequested()
//	    os.Exit(m.Run())
//	}
//
//	func TestStop(t *testing.T) {
//	    h := testutil.Helper(testutil.ModeCooperative)
//	    cmd := exec.Command(h.Path, h.Args...)
//	    cmd.Env = append(os.Environ(), h.Env...)
//	    // ...
//	}
//
// CaptureOutput captures stdout written in-process.
package testutil
