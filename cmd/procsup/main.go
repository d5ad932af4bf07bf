// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Command procsup supervises child processes and speaks the cooperative
// shutdown protocol from both sides.
package main

import "os"

func main() {
	os.Exit(execute())
}
