// Package parser turns decoded syslog wire lines into entity.Message records.
// It discriminates between the RFC 5424 and RFC 3164 formats automatically
// and never fails hard: malformed input degrades to a best-effort record.
package parser

import (
	"errors"
	"strings"
	"time"

	"github.com/thisisjab/sluice/entity"
)

// rfc3164TimestampLayout matches "Mmm dd HH:MM:SS" with a space-padded day.
const rfc3164TimestampLayout = "Jan _2 15:04:05"

// canonicalLocalLayout is the ISO-8601 form used for RFC 3164 timestamps,
// which carry no zone information on the wire.
const canonicalLocalLayout = "2006-01-02T15:04:05"

var (
	ErrNoPriority       = errors.New("no priority header")
	ErrBadTimestamp     = errors.New("unparseable timestamp")
	ErrTruncatedHeader  = errors.New("truncated header")
	ErrMalformedMessage = errors.New("malformed message body")
)

// Parse parses one syslog line. The returned record is always usable and a
// non-nil error describes what was wrong. Without a valid PRI header the
// record defaults to priority 13 (user.notice) with the whole input as
// message; with a valid PRI but a malformed body the record keeps that
// priority and whatever of the header and message could be read.
// SourceIP and ReceivedAt are left for the caller to fill.
func Parse(raw string) (entity.Message, error) {
	pri, rest, ok := splitPriority(raw)
	if !ok {
		msg := entity.Message{
			Priority: entity.DefaultPriority,
			Message:  raw,
			Format:   entity.FormatRFC3164,
			Raw:      raw,
		}
		msg.Classify()
		return msg, ErrNoPriority
	}

	// A version digit followed by a space right after the PRI means RFC 5424.
	if len(rest) >= 2 && isDigit(rest[0]) && rest[1] == ' ' {
		return parseRFC5424(pri, rest[2:], raw)
	}
	return parseRFC3164(pri, rest, raw)
}

// splitPriority reads a leading "<NN>" where NN is 1-3 digits and 0..191.
// Returns the PRI value and the remainder after '>'.
func splitPriority(raw string) (pri int, rest string, ok bool) {
	if len(raw) < 3 || raw[0] != '<' {
		return 0, "", false
	}

	i := 1
	for i < len(raw) && isDigit(raw[i]) {
		if i > 3 {
			return 0, "", false
		}
		pri = pri*10 + int(raw[i]-'0')
		i++
	}
	if i == 1 || i >= len(raw) || raw[i] != '>' || pri > 191 {
		return 0, "", false
	}

	return pri, raw[i+1:], true
}

func parseRFC5424(pri int, rest, raw string) (entity.Message, error) {
	msg := entity.Message{
		Priority: pri,
		Format:   entity.FormatRFC5424,
		Raw:      raw,
	}
	msg.Classify()

	var parseErr error

	// Header tokens in wire order. APP-NAME, PROCID and MSGID are consumed
	// but not kept; the stored record carries only the fields of the model.
	timestamp, rest, ok := cutToken(rest)
	msg.Timestamp = normalizeRFC5424Timestamp(nilToEmpty(timestamp))
	if !ok {
		return msg, ErrTruncatedHeader
	}
	if msg.Timestamp == "" && timestamp != "-" {
		parseErr = ErrBadTimestamp
	}

	hostname, rest, ok := cutToken(rest)
	msg.Hostname = nilToEmpty(hostname)
	if !ok {
		return msg, ErrTruncatedHeader
	}

	for range 3 { // APP-NAME PROCID MSGID
		if _, rest, ok = cutToken(rest); !ok {
			msg.Message = rest
			return msg, ErrTruncatedHeader
		}
	}

	body, err := skipStructuredData(rest)
	if err != nil {
		// Keep whatever followed the header readable rather than dropping it.
		msg.Message = rest
		return msg, err
	}
	msg.Message = body

	return msg, parseErr
}

func parseRFC3164(pri int, rest, raw string) (entity.Message, error) {
	msg := entity.Message{
		Priority: pri,
		Format:   entity.FormatRFC3164,
		Raw:      raw,
	}
	msg.Classify()

	// "Mmm dd HH:MM:SS" is always 15 bytes with the day space-padded.
	if len(rest) < len(rfc3164TimestampLayout) {
		msg.Message = rest
		return msg, ErrBadTimestamp
	}

	stamp, err := time.Parse(rfc3164TimestampLayout, rest[:len(rfc3164TimestampLayout)])
	if err != nil {
		msg.Message = rest
		return msg, ErrBadTimestamp
	}

	// The wire carries no year; attach the current local one.
	now := time.Now()
	stamp = time.Date(now.Year(), stamp.Month(), stamp.Day(),
		stamp.Hour(), stamp.Minute(), stamp.Second(), 0, time.Local)
	msg.Timestamp = stamp.Format(canonicalLocalLayout)

	rest = rest[len(rfc3164TimestampLayout):]
	if len(rest) == 0 || rest[0] != ' ' {
		msg.Message = strings.TrimPrefix(rest, " ")
		return msg, ErrMalformedMessage
	}

	hostname, body, _ := cutToken(rest[1:])
	msg.Hostname = hostname
	msg.Message = body

	return msg, nil
}

// skipStructuredData consumes the STRUCTURED-DATA element ("-" or one or
// more bracketed groups) and returns the free-text message after it.
// Quoted values may escape '"', '\' and ']' with a backslash.
func skipStructuredData(rest string) (string, error) {
	if rest == "" {
		return "", nil
	}
	if rest[0] == '-' {
		if len(rest) == 1 {
			return "", nil
		}
		if rest[1] != ' ' {
			return "", ErrMalformedMessage
		}
		return rest[2:], nil
	}
	if rest[0] != '[' {
		return "", ErrMalformedMessage
	}

	i := 0
	for i < len(rest) && rest[i] == '[' {
		i++
		inQuotes := false
		closed := false
		for i < len(rest) {
			c := rest[i]
			switch {
			case c == '\\' && inQuotes && i+1 < len(rest):
				i++ // skip the escaped byte
			case c == '"':
				inQuotes = !inQuotes
			case c == ']' && !inQuotes:
				closed = true
			}
			i++
			if closed {
				break
			}
		}
		if !closed {
			return "", ErrMalformedMessage
		}
	}

	if i >= len(rest) {
		return "", nil
	}
	if rest[i] != ' ' {
		return "", ErrMalformedMessage
	}
	return rest[i+1:], nil
}

// normalizeRFC5424Timestamp re-renders an ISO-8601 wire timestamp in
// canonical form. Unparseable input yields an empty string.
func normalizeRFC5424Timestamp(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

// cutToken splits off the next space-separated token. ok is false when no
// separator remains, in which case the whole input is returned as token.
func cutToken(s string) (token, rest string, ok bool) {
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}

func nilToEmpty(token string) string {
	if token == "-" {
		return ""
	}
	return token
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
