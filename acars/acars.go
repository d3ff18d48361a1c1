// Package acars handles the plain-text ACARS message format that Jaero
// emits in output format 3: message framing, header field extraction,
// and classification into output buckets.
package acars

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

// Message type classification results.
const (
	TypeCPDLC = "CPDLC"
	TypeADSC  = "ADS-C"
	TypeMIAM  = "MIAM"
	TypeOther = "OTHER"
)

var (
	// Every message begins with a timestamp header line, e.g.
	// "00:16:25 18-03-25 UTC AES:E4920F GES:D0 2 ..PTZNG 2 52 A".
	headerRE = regexp.MustCompile(`(?m)^\d{2}:\d{2}:\d{2} \d{2}-\d{2}-\d{2} UTC`)

	// Registration following the AES/GES fields. At most one leading
	// pad dot matches, so double-padded registrations don't.
	tailRE = regexp.MustCompile(`AES:[A-F0-9]+\s+GES:[A-Z0-9]+\s+\d+\s+(\.?[A-Za-z0-9-]+)`)

	// Two-character label after the '!' marker in older Jaero log output.
	markerRE = regexp.MustCompile(`!\s+([A-Za-z0-9]{2})\s+[A-Za-z0-9]`)

	alnumRE = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

// Jaero writes dd-mm-yy dates.
const headerTimeLayout = "15:04:05 02-01-06"

// Message is a single ACARS message as decoded by Jaero. Raw is the
// full trimmed text; the remaining fields are parsed from the header
// line and are empty (or zero) when absent or malformed.
type Message struct {
	Raw       string
	Timestamp time.Time
	AES       string // aircraft earth station hex ID
	GES       string // ground earth station ID
	Tail      string // registration, pad dots stripped
	Label     string // label field of the header line
}

// New parses one ACARS message. The input is trimmed; an input that is
// empty after trimming is rejected. Messages whose first line is not a
// timestamp header still parse, with only Raw and Tail populated.
func New(buf string) (*Message, error) {
	msg := new(Message)
	msg.Raw = strings.TrimSpace(buf)
	if len(msg.Raw) == 0 {
		return msg, errors.New("New ACARS message: empty input")
	}

	firstLine := msg.Raw
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = strings.TrimSpace(firstLine[:i])
	}
	parts := strings.Fields(firstLine)

	if headerRE.MatchString(firstLine) {
		if t, err := time.Parse(headerTimeLayout, parts[0]+" "+parts[1]); err == nil {
			msg.Timestamp = t
		}
	}
	if len(parts) > 3 && strings.HasPrefix(parts[3], "AES:") {
		msg.AES = strings.TrimPrefix(parts[3], "AES:")
	}
	if len(parts) > 4 && strings.HasPrefix(parts[4], "GES:") {
		msg.GES = strings.TrimPrefix(parts[4], "GES:")
	}
	// The label sits in the 9th field of the header line.
	if len(parts) >= 9 && alnumRE.MatchString(parts[8]) {
		msg.Label = parts[8]
	}
	msg.Tail = ExtractTail(msg.Raw)

	return msg, nil
}

// Split cuts a Jaero log into individual messages. A message runs from
// one timestamp header line to the next. Returns nil when the content
// contains no header line at all (wrong Jaero output format).
func Split(content string) []string {
	locs := headerRE.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		if m := strings.TrimSpace(content[loc[0]:end]); m != "" {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// ExtractLabel returns the message label following the '!' marker, or
// "" if there is none. Older Jaero log files carry the marker; live
// format-3 output carries the label in the header line instead (see
// Message.Label).
func ExtractLabel(message string) string {
	if m := markerRE.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return ""
}

// ExtractTail returns the aircraft registration, or "" if none matches.
func ExtractTail(message string) string {
	if m := tailRE.FindStringSubmatch(message); m != nil {
		return strings.Trim(m[1], ".")
	}
	return ""
}

// MessageType classifies a message as CPDLC, ADS-C, MIAM or OTHER by
// content. First match wins, so a CPDLC uplink quoting an ADS-C
// contract stays CPDLC.
func MessageType(message string) string {
	switch {
	case strings.Contains(message, "FANS-1/A CPDLC"):
		return TypeCPDLC
	case strings.Contains(message, "ADS-C"):
		return TypeADSC
	case strings.Contains(message, "MIAM"):
		return TypeMIAM
	}
	return TypeOther
}

// ContainsKeyword reports whether the message contains the keyword,
// case-insensitively.
func ContainsKeyword(message, keyword string) bool {
	return strings.Contains(strings.ToLower(message), strings.ToLower(keyword))
}

// Key returns the bucket key of the message under the given scheme, ""
// meaning unclassified. Label classification uses the header-line
// label field; when splitting old-format log files use ExtractLabel
// on the raw text instead.
func (m *Message) Key(scheme Scheme, keyword string) string {
	switch scheme {
	case ByLabel:
		return m.Label
	case ByTail:
		return m.Tail
	case ByType:
		return MessageType(m.Raw)
	case ByKeyword:
		if keyword != "" && ContainsKeyword(m.Raw, keyword) {
			return keyword
		}
	}
	return ""
}
