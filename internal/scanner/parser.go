package scanner

import (
	"strings"
	"time"

	"logvault/pkg/types"
)

var lineTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
}

var levelWords = map[string]types.Level{
	"TRACE": types.LevelTrace, "DEBUG": types.LevelDebug, "INFO": types.LevelInfo,
	"WARN": types.LevelWarning, "WARNING": types.LevelWarning,
	"ERROR": types.LevelError, "ERR": types.LevelError,
	"FATAL": types.LevelFatal, "PANIC": types.LevelFatal, "CRITICAL": types.LevelFatal,
}

// parseLine applies the built-in grammar: an ISO-8601 timestamp prefix,
// an optional level word, then the remainder as message. A line that
// matches neither falls back to now() / UNKNOWN / the whole line.
func parseLine(source, line string) *types.LogRecord {
	rest := line
	ts, ok, consumed := consumeTimestamp(rest)
	if ok {
		rest = strings.TrimSpace(rest[consumed:])
	} else {
		ts = time.Now().UTC()
	}

	level := types.LevelUnknown
	if word, remainder, found := consumeLevelWord(rest); found {
		level = word
		rest = remainder
	}

	if !ok && level == types.LevelUnknown {
		rest = line
	}

	return &types.LogRecord{
		Timestamp: ts,
		Level:     level,
		Source:    source,
		Message:   rest,
		Raw:       line,
	}
}

func consumeTimestamp(s string) (time.Time, bool, int) {
	fields := strings.SplitN(s, " ", 2)
	if len(fields) == 0 {
		return time.Time{}, false, 0
	}
	candidate := fields[0]
	for _, layout := range lineTimestampLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.UTC(), true, len(candidate)
		}
	}
	// Try "yyyy-MM-dd HH:mm:ss" which contains a space and would have
	// been split above; retry against the first two space-joined fields.
	if len(fields) == 2 {
		twoField := candidate + " " + strings.SplitN(fields[1], " ", 2)[0]
		if t, err := time.Parse("2006-01-02 15:04:05", twoField); err == nil {
			return t.UTC(), true, len(twoField)
		}
	}
	return time.Time{}, false, 0
}

func consumeLevelWord(s string) (types.Level, string, bool) {
	s = strings.TrimSpace(s)
	fields := strings.SplitN(s, " ", 2)
	if len(fields) == 0 {
		return types.LevelUnknown, s, false
	}
	token := strings.ToUpper(strings.Trim(fields[0], "[]:"))
	if level, ok := levelWords[token]; ok {
		if len(fields) == 2 {
			return level, strings.TrimSpace(fields[1]), true
		}
		return level, "", true
	}
	return types.LevelUnknown, s, false
}
