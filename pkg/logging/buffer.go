package logging

import (
	"sync"
)

// LogCaptureWriter keeps the most recent line written to it, so a host UI
// can show the latest status without tailing files.
type LogCaptureWriter struct {
	mu       sync.RWMutex
	lastLine string
}

// GlobalLogCapture receives INFO+ application log lines.
var GlobalLogCapture = &LogCaptureWriter{}

// GlobalEventCapture receives playback event lines.
var GlobalEventCapture = &LogCaptureWriter{}

// Write implements io.Writer.
func (w *LogCaptureWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastLine = string(p)
	return len(p), nil
}

// GetLastLine returns the most recent line.
func (w *LogCaptureWriter) GetLastLine() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastLine
}
