package acars

import (
	"testing"
	"time"
)

// Jaero output format 3, double-padded registration.
const msgLabeled = `00:16:25 18-03-25 UTC AES:E4920F GES:D0 2 ..PTZNG 2 52 A
#M1BREQPDC`

// Single pad dot, CPDLC content.
const msgCPDLC = `18:32:47 12-02-24 UTC AES:71BE34 GES:82 2 .N416DN 2 A6 M
FANS-1/A CPDLC Message
/AKLCDYA.AT1.N416DN215B1A9D6E1`

const sampleLog = `not a header, noise from a previous session
00:16:25 18-03-25 UTC AES:E4920F GES:D0 2 ..PTZNG 2 52 A
#M1BREQPDC

00:17:02 18-03-25 UTC AES:71BE34 GES:D0 2 .N416DN 2 10 E
ADS-C message follows
REPORT

00:19:45 18-03-25 UTC AES:06A1F9 GES:D0 2 .VH-OQK 2 H1 C
#T3BMIAM CORE
`

func TestNew(t *testing.T) {
	m, err := New(msgLabeled)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := time.Date(2025, 3, 18, 0, 16, 25, 0, time.UTC)
	if !m.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", m.Timestamp, want)
	}
	if m.AES != "E4920F" {
		t.Errorf("AES = %q", m.AES)
	}
	if m.GES != "D0" {
		t.Errorf("GES = %q", m.GES)
	}
	if m.Label != "52" {
		t.Errorf("Label = %q, want 52", m.Label)
	}
	// A double pad dot doesn't match the registration pattern.
	if m.Tail != "" {
		t.Errorf("Tail = %q, want empty for double-padded registration", m.Tail)
	}
}

func TestNewSinglePadDot(t *testing.T) {
	m, err := New(msgCPDLC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Tail != "N416DN" {
		t.Errorf("Tail = %q, want N416DN", m.Tail)
	}
	if m.Label != "A6" {
		t.Errorf("Label = %q, want A6", m.Label)
	}
}

func TestNewNoHeader(t *testing.T) {
	m, err := New("just some text\nwith no header line")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !m.Timestamp.IsZero() {
		t.Errorf("Timestamp = %v, want zero", m.Timestamp)
	}
	if m.Label != "" || m.AES != "" || m.GES != "" {
		t.Errorf("unexpected header fields: %+v", m)
	}
}

func TestNewShortHeader(t *testing.T) {
	// Only 8 fields, so no label.
	m, err := New("00:16:25 18-03-25 UTC AES:E4920F GES:D0 2 .N1 2")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Label != "" {
		t.Errorf("Label = %q, want empty for short header", m.Label)
	}
}

func TestNewEmpty(t *testing.T) {
	if _, err := New("  \r\n "); err == nil {
		t.Error("New accepted an empty message")
	}
}

func TestSplit(t *testing.T) {
	msgs := Split(sampleLog)
	if len(msgs) != 3 {
		t.Fatalf("Split returned %d messages, want 3", len(msgs))
	}
	for i, m := range msgs {
		if !headerRE.MatchString(m) {
			t.Errorf("message %d does not start with a header: %q", i, m)
		}
	}
	// Noise before the first header is dropped.
	if got := msgs[0]; got != "00:16:25 18-03-25 UTC AES:E4920F GES:D0 2 ..PTZNG 2 52 A\n#M1BREQPDC" {
		t.Errorf("first message = %q", got)
	}
}

func TestSplitNoHeaders(t *testing.T) {
	if msgs := Split("no headers anywhere\nstill nothing\n"); msgs != nil {
		t.Errorf("Split = %v, want nil", msgs)
	}
}

func TestExtractLabel(t *testing.T) {
	msg := "12:00:00 01-01-24 UTC AES:ABCDEF GES:02 ! 5Z A 9 .N772SK"
	if got := ExtractLabel(msg); got != "5Z" {
		t.Errorf("ExtractLabel = %q, want 5Z", got)
	}
	if got := ExtractLabel(msgLabeled); got != "" {
		t.Errorf("ExtractLabel = %q, want empty without marker", got)
	}
}

func TestExtractTail(t *testing.T) {
	if got := ExtractTail(msgCPDLC); got != "N416DN" {
		t.Errorf("ExtractTail = %q, want N416DN", got)
	}
	if got := ExtractTail("no AES fields here"); got != "" {
		t.Errorf("ExtractTail = %q, want empty", got)
	}
}

func TestMessageType(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"cpdlc", "blah FANS-1/A CPDLC Message blah", TypeCPDLC},
		{"adsc", "ADS-C report", TypeADSC},
		{"miam", "#T3BMIAM CORE", TypeMIAM},
		{"other", "#M1BREQPDC", TypeOther},
		{"cpdlc wins over adsc", "FANS-1/A CPDLC requesting ADS-C contract", TypeCPDLC},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := MessageType(c.text); got != c.want {
				t.Errorf("MessageType(%q) = %q, want %q", c.text, got, c.want)
			}
		})
	}
}

func TestContainsKeyword(t *testing.T) {
	if !ContainsKeyword("REQUEST DESCENT TO FL350", "descent") {
		t.Error("case-insensitive match failed")
	}
	if ContainsKeyword("REQUEST DESCENT TO FL350", "climb") {
		t.Error("matched a keyword that isn't there")
	}
}

func TestKey(t *testing.T) {
	m, err := New(msgCPDLC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := m.Key(ByLabel, ""); got != "A6" {
		t.Errorf("Key(ByLabel) = %q", got)
	}
	if got := m.Key(ByTail, ""); got != "N416DN" {
		t.Errorf("Key(ByTail) = %q", got)
	}
	if got := m.Key(ByType, ""); got != TypeCPDLC {
		t.Errorf("Key(ByType) = %q", got)
	}
	if got := m.Key(ByKeyword, "cpdlc"); got != "cpdlc" {
		t.Errorf("Key(ByKeyword) = %q", got)
	}
	if got := m.Key(ByKeyword, "weather"); got != "" {
		t.Errorf("Key(ByKeyword, miss) = %q, want empty", got)
	}
	if got := m.Key(ByKeyword, ""); got != "" {
		t.Errorf("Key(ByKeyword, no keyword) = %q, want empty", got)
	}
}
