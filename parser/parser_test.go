package parser

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/thisisjab/sluice/entity"
)

func TestParseRFC3164(t *testing.T) {
	year := time.Now().Year()

	tests := map[string]entity.Message{
		"<13>Oct 31 12:00:00 server01 Test message": {
			Priority:  13,
			Facility:  "user",
			Severity:  "notice",
			Timestamp: fmt.Sprintf("%d-10-31T12:00:00", year),
			Hostname:  "server01",
			Message:   "Test message",
			Format:    entity.FormatRFC3164,
		},
		"<34>Oct 11 22:14:15 server app: Hello World": {
			Priority:  34,
			Facility:  "auth",
			Severity:  "critical",
			Timestamp: fmt.Sprintf("%d-10-11T22:14:15", year),
			Hostname:  "server",
			Message:   "app: Hello World",
			Format:    entity.FormatRFC3164,
		},
		// Space-padded single-digit day.
		"<165>Aug  7 05:03:01 box cron job done": {
			Priority:  165,
			Facility:  "local4",
			Severity:  "notice",
			Timestamp: fmt.Sprintf("%d-08-07T05:03:01", year),
			Hostname:  "box",
			Message:   "cron job done",
			Format:    entity.FormatRFC3164,
		},
	}

	for input, expected := range tests {
		expected.Raw = input
		actual, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", input, err)
		}
		if diff := cmp.Diff(expected, actual); diff != "" {
			t.Fatalf("Parse(%q) mismatch (-want +got):\n%s", input, diff)
		}
	}
}

func TestParseRFC3164BadTimestamp(t *testing.T) {
	input := "<13>not a timestamp at all"
	actual, err := Parse(input)
	if err == nil {
		t.Fatalf("Parse(%q) expected a diagnostic error", input)
	}
	if actual.Priority != 13 || actual.Severity != "notice" {
		t.Fatalf("Parse(%q) priority/severity = %d/%s", input, actual.Priority, actual.Severity)
	}
	if actual.Timestamp != "" {
		t.Fatalf("Parse(%q) timestamp = %q, want empty", input, actual.Timestamp)
	}
	if actual.Message != "not a timestamp at all" {
		t.Fatalf("Parse(%q) message = %q", input, actual.Message)
	}
}

func TestParseRFC5424(t *testing.T) {
	tests := map[string]entity.Message{
		"<14>1 2025-10-31T12:00:00.000Z host1 webapp 99 REQ001 [request@1 method=\"GET\"] Request done": {
			Priority:  14,
			Facility:  "user",
			Severity:  "info",
			Timestamp: "2025-10-31T12:00:00Z",
			Hostname:  "host1",
			Message:   "Request done",
			Format:    entity.FormatRFC5424,
		},
		"<165>1 2003-10-11T22:14:15.003Z mymachine.example.com evntslog - ID47 - An application event": {
			Priority:  165,
			Facility:  "local4",
			Severity:  "notice",
			Timestamp: "2003-10-11T22:14:15.003Z",
			Hostname:  "mymachine.example.com",
			Message:   "An application event",
			Format:    entity.FormatRFC5424,
		},
		// NIL hostname and timestamp, offset timezone elsewhere.
		"<86>1 - - sudo 1234 - - session opened": {
			Priority: 86,
			Facility: "authpriv",
			Severity: "info",
			Message:  "session opened",
			Format:   entity.FormatRFC5424,
		},
		"<14>1 2003-08-24T05:14:15.000003-07:00 h app p m - msg body": {
			Priority:  14,
			Facility:  "user",
			Severity:  "info",
			Timestamp: "2003-08-24T05:14:15.000003-07:00",
			Hostname:  "h",
			Message:   "msg body",
			Format:    entity.FormatRFC5424,
		},
		// Multiple SD groups and escaped characters inside quoted values.
		"<14>1 2025-01-01T00:00:00Z h a p m [x@1 k=\"a\\\"b\\]c\"][y@2 z=\"1\"] tail here": {
			Priority:  14,
			Facility:  "user",
			Severity:  "info",
			Timestamp: "2025-01-01T00:00:00Z",
			Hostname:  "h",
			Message:   "tail here",
			Format:    entity.FormatRFC5424,
		},
		// Structured data only, no message.
		"<14>1 2025-01-01T00:00:00Z h a p m [x@1 k=\"v\"]": {
			Priority:  14,
			Facility:  "user",
			Severity:  "info",
			Timestamp: "2025-01-01T00:00:00Z",
			Hostname:  "h",
			Format:    entity.FormatRFC5424,
		},
	}

	for input, expected := range tests {
		expected.Raw = input
		actual, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", input, err)
		}
		if diff := cmp.Diff(expected, actual); diff != "" {
			t.Fatalf("Parse(%q) mismatch (-want +got):\n%s", input, diff)
		}
	}
}

func TestParseRFC5424BadTimestamp(t *testing.T) {
	input := "<14>1 yesterday h a p m - body"
	actual, err := Parse(input)
	if err == nil {
		t.Fatalf("Parse(%q) expected a diagnostic error", input)
	}
	if actual.Timestamp != "" {
		t.Fatalf("Parse(%q) timestamp = %q, want empty", input, actual.Timestamp)
	}
	if actual.Hostname != "h" || actual.Message != "body" {
		t.Fatalf("Parse(%q) hostname/message = %q/%q", input, actual.Hostname, actual.Message)
	}
}

func TestParseUnstructured(t *testing.T) {
	inputs := []string{
		"plain text without priority",
		"<192>priority out of range",
		"<abc>not numeric",
		"<>empty",
		"<1234>too many digits",
	}

	for _, input := range inputs {
		actual, err := Parse(input)
		if err == nil {
			t.Fatalf("Parse(%q) expected a diagnostic error", input)
		}
		if actual.Priority != entity.DefaultPriority {
			t.Fatalf("Parse(%q) priority = %d, want %d", input, actual.Priority, entity.DefaultPriority)
		}
		if actual.Facility != "user" || actual.Severity != "notice" {
			t.Fatalf("Parse(%q) facility/severity = %s/%s", input, actual.Facility, actual.Severity)
		}
		if actual.Message != input || actual.Raw != input {
			t.Fatalf("Parse(%q) message = %q raw = %q", input, actual.Message, actual.Raw)
		}
		if actual.Format != entity.FormatRFC3164 {
			t.Fatalf("Parse(%q) format = %q", input, actual.Format)
		}
	}
}

func TestParsePriorityBounds(t *testing.T) {
	for _, pri := range []int{0, 1, 13, 100, 191} {
		input := fmt.Sprintf("<%d>Oct 31 12:00:00 host body", pri)
		actual, err := Parse(input)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", input, err)
		}
		if actual.Priority != pri {
			t.Fatalf("Parse(%q) priority = %d, want %d", input, actual.Priority, pri)
		}
		if actual.Facility != entity.FacilityName(pri) {
			t.Fatalf("Parse(%q) facility = %q, want %q", input, actual.Facility, entity.FacilityName(pri))
		}
		if actual.Severity != entity.SeverityName(pri) {
			t.Fatalf("Parse(%q) severity = %q, want %q", input, actual.Severity, entity.SeverityName(pri))
		}
	}
}

func TestRoundTripRFC3164(t *testing.T) {
	stamp := time.Date(time.Now().Year(), time.October, 31, 12, 0, 0, 0, time.Local)

	for _, pri := range []int{0, 13, 34, 191} {
		line := BuildRFC3164(pri, stamp, "host42", "something happened")
		parsed, err := Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", line, err)
		}
		if parsed.Priority != pri || parsed.Hostname != "host42" || parsed.Message != "something happened" {
			t.Fatalf("round trip of %q lost fields: %+v", line, parsed)
		}
		if parsed.Severity != entity.SeverityName(pri) || parsed.Facility != entity.FacilityName(pri) {
			t.Fatalf("round trip of %q misclassified: %+v", line, parsed)
		}
	}
}

func TestRoundTripRFC5424(t *testing.T) {
	stamp := time.Date(2025, time.October, 31, 12, 0, 0, 0, time.UTC)

	for _, pri := range []int{0, 14, 86, 191} {
		line := BuildRFC5424(pri, stamp, "host42", "app", "77", "ID9", "something happened")
		parsed, err := Parse(line)
		if err != nil {
			t.Fatalf("Parse(%q) unexpected error: %v", line, err)
		}
		if parsed.Priority != pri || parsed.Hostname != "host42" || parsed.Message != "something happened" {
			t.Fatalf("round trip of %q lost fields: %+v", line, parsed)
		}
		if parsed.Severity != entity.SeverityName(pri) || parsed.Facility != entity.FacilityName(pri) {
			t.Fatalf("round trip of %q misclassified: %+v", line, parsed)
		}
		if parsed.Format != entity.FormatRFC5424 {
			t.Fatalf("round trip of %q format = %q", line, parsed.Format)
		}
	}
}
