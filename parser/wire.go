package parser

import (
	"fmt"
	"time"
)

// BuildRFC3164 renders a legacy BSD syslog line.
func BuildRFC3164(priority int, stamp time.Time, hostname, message string) string {
	return fmt.Sprintf("<%d>%s %s %s",
		priority, stamp.Format(rfc3164TimestampLayout), hostname, message)
}

// BuildRFC5424 renders a structured syslog line with NIL structured data.
// Empty header fields are rendered as the NIL value "-".
func BuildRFC5424(priority int, stamp time.Time, hostname, appName, procID, msgID, message string) string {
	ts := "-"
	if !stamp.IsZero() {
		ts = stamp.Format(time.RFC3339Nano)
	}
	line := fmt.Sprintf("<%d>1 %s %s %s %s %s -",
		priority, ts, nilify(hostname), nilify(appName), nilify(procID), nilify(msgID))
	if message == "" {
		return line
	}
	return line + " " + message
}

func nilify(field string) string {
	if field == "" {
		return "-"
	}
	return field
}
