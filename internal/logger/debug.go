// Package logger provides opt-in debug logging to a file. It is off by
// default so the mapping layer stays silent inside applications that own
// their terminal or log pipeline.
package logger

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	debugEnabled bool
	debugMutex   sync.RWMutex
)

// SetDebugEnabled enables or disables debug logging
func SetDebugEnabled(enabled bool) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug logging is enabled
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugEnabled
}

// DebugToFile logs debug messages to a file
func DebugToFile(context string, message string) {
	if !IsDebugEnabled() {
		return
	}

	logPath := os.Getenv("CQLMAPPER_DEBUG_LOG_PATH")
	if logPath == "" {
		cwd, _ := os.Getwd()
		logPath = cwd + "/cqlmapper_debug.log"
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304: Potential file inclusion via variable
	if err != nil {
		return
	}
	defer logFile.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(logFile, "[%s] Context: %s | %s\n", timestamp, context, message)
	_ = logFile.Sync()
}

// DebugfToFile logs formatted debug messages to a file
func DebugfToFile(context string, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	message := fmt.Sprintf(format, args...)
	DebugToFile(context, message)
}
