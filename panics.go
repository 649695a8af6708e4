package directive

import (
	"fmt"
	"runtime"
	"strings"
)

// RecoverHandlerCall runs fn and, should it panic, recovers and reports
// the panic through logger as a "handler refused" outcome rather than
// letting it unwind across the goroutine boundary (the receiving or
// handling thread). It returns true if fn completed without panicking.
func RecoverHandlerCall(logger Logger, key Key, messageID, site string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			logPanic(logger, key, messageID, site, r)
		}
	}()
	fn()
	return true
}

func logPanic(logger Logger, key Key, messageID, site string, recovered any) {
	stack := make([]byte, 8096)
	n := runtime.Stack(stack, false)
	stack = cleanStackTrace(stack[:n])

	logger = normalizeLogger(logger)
	logger.Error("recovered from panic in %s: goroutine=%d namespace=%s name=%s message_id=%s recovered=%v\n%s",
		site, goroutineID(), key.Namespace, key.Name, messageID, recovered, stack)
}

// cleanStackTrace drops the panic()/runtime.panic frame lines so the
// reported trace starts at the handler call site.
func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}

func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	var id uint64
	fmt.Sscanf(strings.TrimPrefix(string(buf), "goroutine "), "%d", &id)
	return id
}
