package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// TransactionLog represents a single processed transaction's outcome, the
// per-item companion to the operational logger's free-form lines.
type TransactionLog struct {
	Timestamp        time.Time `json:"timestamp"`
	Signature        string    `json:"signature"`
	ProgramID        string    `json:"program_id"`
	Slot             uint64    `json:"slot"`
	Source           string    `json:"source"` // "live" or "resync"
	DurationMs       int64     `json:"duration_ms"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	InstructionCount int       `json:"instruction_count"`
	Retries          int       `json:"retries,omitempty"`
}

// Logger handles per-transaction logging.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLogger = &Logger{enabled: true, console: true}

// Default returns the default logger
func Default() *Logger {
	return defaultLogger
}

// SetOutput sets the log output file
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables/disables console output
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log writes a transaction log entry.
func (l *Logger) Log(entry *TransactionLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "✓"
		if !entry.Success {
			status = "✗"
		}
		retry := ""
		if entry.Retries > 0 {
			retry = fmt.Sprintf(" [retry:%d]", entry.Retries)
		}
		fmt.Printf("[tx] %s %s %s %dms%s\n",
			status, entry.Signature, entry.Source, entry.DurationMs, retry)
		if entry.Error != "" {
			fmt.Printf("[tx]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
