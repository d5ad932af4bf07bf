// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

package cmdutil

import (
	"bytes"
	"sync"
)

// LineWriter wraps an OutputLineHandler as an io.Writer.
// It buffers partial lines and calls the handler for each complete line,
// with any trailing "\r" removed.
type LineWriter struct {
	handler OutputLineHandler
	buf     []byte
	mu      sync.Mutex
}

// NewLineWriter returns a LineWriter that delivers lines to handler.
func NewLineWriter(handler OutputLineHandler) *LineWriter {
	return &LineWriter{handler: handler}
}

func (lw *LineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(lw.buf[:idx], []byte{'\r'})
		lw.emit(string(line))
		lw.buf = lw.buf[idx+1:]
	}

	return len(p), nil
}

// Flush processes any remaining buffered data as a final line.
func (lw *LineWriter) Flush() {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if len(lw.buf) > 0 {
		lw.emit(string(bytes.TrimSuffix(lw.buf, []byte{'\r'})))
		lw.buf = nil
	}
}

func (lw *LineWriter) emit(line string) {
	if lw.handler != nil {
		lw.handler(line)
	}
}
