package entity

import "fmt"

// DefaultPriority is user.notice, assigned when a message carries no parseable PRI.
const DefaultPriority = 13

// ReceivedAtLayout is the wall-clock timestamp format attached at pipeline entry.
const ReceivedAtLayout = "2006-01-02T15:04:05.000000Z07:00"

const (
	FormatRFC3164 = "RFC3164"
	FormatRFC5424 = "RFC5424"
)

var severityNames = [8]string{
	"emergency", "alert", "critical", "error", "warning", "notice", "info", "debug",
}

var facilityNames = [24]string{
	"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
	"uucp", "cron", "authpriv", "ftp", "ntp", "security", "console", "solaris-cron",
	"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
}

// SeverityName returns the symbolic severity for a PRI value (priority & 7).
func SeverityName(priority int) string {
	return severityNames[priority&0x07]
}

// FacilityName returns the symbolic facility for a PRI value (priority >> 3).
func FacilityName(priority int) string {
	code := priority >> 3
	if code >= 0 && code < len(facilityNames) {
		return facilityNames[code]
	}
	return fmt.Sprintf("facility%d", code)
}

// Severities lists all eight severity names ordered by numeric code.
func Severities() []string {
	return severityNames[:]
}

// Envelope is a decoded wire line together with the peer that sent it,
// as handed from a receiver to the pipeline.
type Envelope struct {
	Raw      string
	SourceIP string
}

// Message is a fully parsed syslog record. Immutable once it leaves the
// pipeline; the field order below is the serialized key order.
type Message struct {
	Priority   int    `json:"priority"`
	Facility   string `json:"facility"`
	Severity   string `json:"severity"`
	Timestamp  string `json:"timestamp"`
	Hostname   string `json:"hostname"`
	Message    string `json:"message"`
	SourceIP   string `json:"source_ip"`
	ReceivedAt string `json:"received_at"`
	Format     string `json:"format"`
	Raw        string `json:"raw"`
}

// Classify fills Facility and Severity from Priority.
func (m *Message) Classify() {
	m.Facility = FacilityName(m.Priority)
	m.Severity = SeverityName(m.Priority)
}
