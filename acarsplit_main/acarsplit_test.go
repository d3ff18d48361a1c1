package main

import (
	"testing"

	"github.com/jaerotools/acarsplit/acars"
)

func TestChooseScheme(t *testing.T) {
	scheme, err := chooseScheme(false, false, false, "")
	if err != nil || scheme != acars.ByLabel {
		t.Errorf("default = %v, %v, want label", scheme, err)
	}
	scheme, err = chooseScheme(false, true, false, "")
	if err != nil || scheme != acars.ByTail {
		t.Errorf("-t = %v, %v, want tail", scheme, err)
	}
	scheme, err = chooseScheme(false, false, false, "descent")
	if err != nil || scheme != acars.ByKeyword {
		t.Errorf("-k = %v, %v, want keyword", scheme, err)
	}
	if _, err := chooseScheme(true, true, false, ""); err == nil {
		t.Error("conflicting scheme flags were accepted")
	}
	if _, err := chooseScheme(false, false, false, "../evil"); err == nil {
		t.Error("keyword with path separators was accepted")
	}
}

func TestClassify(t *testing.T) {
	marker := "12:00:00 01-01-24 UTC AES:ABCDEF GES:02 ! 5Z A 9 .N772SK"
	if got := classify(marker, acars.ByLabel, ""); got != "5Z" {
		t.Errorf("label = %q, want 5Z", got)
	}

	cpdlc := "18:32:47 12-02-24 UTC AES:71BE34 GES:82 2 .N416DN 2 A6 M\nFANS-1/A CPDLC Message"
	if got := classify(cpdlc, acars.ByTail, ""); got != "N416DN" {
		t.Errorf("tail = %q, want N416DN", got)
	}
	if got := classify(cpdlc, acars.ByType, ""); got != acars.TypeCPDLC {
		t.Errorf("type = %q, want %s", got, acars.TypeCPDLC)
	}
	if got := classify(cpdlc, acars.ByKeyword, "cpdlc"); got != "cpdlc" {
		t.Errorf("keyword = %q, want cpdlc", got)
	}
	if got := classify(cpdlc, acars.ByKeyword, "weather"); got != "" {
		t.Errorf("keyword miss = %q, want empty", got)
	}
}
