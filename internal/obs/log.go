// Package obs carries the service's observability plumbing: the shared
// JSON-line logger, Prometheus metrics, and build information.
package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide logger. Output is one JSON object per
// line on stdout with no prefix or flags, so timestamps live inside the
// entries themselves.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits entry as a single JSON log line. A non-marshalable
// entry degrades to a fixed error line rather than being dropped.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"level":"error","msg":"log entry not marshalable"}`)
		return
	}
	Logger().Println(string(data))
}
