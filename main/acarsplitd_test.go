package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaerotools/acarsplit/acars"
)

func TestValidateSettingsDefaults(t *testing.T) {
	defaultSettings()
	globalSettings.Ports = []int{5550}
	if err := validateSettings(true); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if splitScheme != acars.ByLabel {
		t.Errorf("expected label scheme, got %v", splitScheme)
	}
}

func TestValidateSettingsNoPorts(t *testing.T) {
	defaultSettings()
	err := validateSettings(true)
	if err == nil {
		t.Fatalf("expected an error with no ports")
	}
	if err.Error() != "No UDP ports specified in the configuration file" {
		t.Errorf("wrong error: %v", err)
	}
	if err := validateSettings(false); err != nil {
		t.Errorf("ports shouldn't be required here: %v", err)
	}
}

func TestValidateSettingsKeyword(t *testing.T) {
	defaultSettings()
	globalSettings.Ports = []int{5550}
	globalSettings.SplitBy = "keyword"
	if err := validateSettings(true); err == nil {
		t.Errorf("expected an error with no keyword")
	}
	globalSettings.Keyword = "CPDLC"
	if err := validateSettings(true); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if splitScheme != acars.ByKeyword {
		t.Errorf("expected keyword scheme, got %v", splitScheme)
	}
	globalSettings.Keyword = "../evil"
	if err := validateSettings(true); err == nil {
		t.Errorf("expected an error for a keyword with path separators")
	}
}

func TestValidateSettingsBadTimeout(t *testing.T) {
	defaultSettings()
	globalSettings.Ports = []int{5550}
	globalSettings.BufferTimeout = -5
	if err := validateSettings(true); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if globalSettings.BufferTimeout != defaultBufferTimeout {
		t.Errorf("timeout not reset, got %d", globalSettings.BufferTimeout)
	}
}

func TestReadSettingsMergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"ports": [5550, 5551], "split_by": "type"}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	settingsPath = path
	readSettings()
	if globalSettings.Host != defaultHost {
		t.Errorf("host default lost: %q", globalSettings.Host)
	}
	if globalSettings.BufferTimeout != defaultBufferTimeout {
		t.Errorf("timeout default lost: %d", globalSettings.BufferTimeout)
	}
	if len(globalSettings.Ports) != 2 || globalSettings.Ports[0] != 5550 || globalSettings.Ports[1] != 5551 {
		t.Errorf("ports not read: %v", globalSettings.Ports)
	}
	if globalSettings.SplitBy != "type" {
		t.Errorf("split_by not read: %q", globalSettings.SplitBy)
	}
}

func TestReadSettingsMissingFile(t *testing.T) {
	settingsPath = filepath.Join(t.TempDir(), "nope.json")
	globalSettings.Host = "changed"
	readSettings()
	if globalSettings.Host != defaultHost {
		t.Errorf("expected defaults after read failure, host %q", globalSettings.Host)
	}
}

func TestReloadKeepsRestartOnlyFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"ports": [9999], "debug": true, "output_dir": "elsewhere"}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	settingsPath = path
	defaultSettings()
	globalSettings.Ports = []int{5550}
	globalSettings.OutputDir = "orig"
	reloadSettings()
	if !globalSettings.DEBUG {
		t.Errorf("debug toggle not applied")
	}
	if len(globalSettings.Ports) != 1 || globalSettings.Ports[0] != 5550 {
		t.Errorf("ports changed without a restart: %v", globalSettings.Ports)
	}
	if globalSettings.OutputDir != "orig" {
		t.Errorf("output dir changed without a restart: %q", globalSettings.OutputDir)
	}
}

func TestParseReplayPorts(t *testing.T) {
	ports := parseReplayPorts("5550, 5551")
	if len(ports) != 2 || ports[0] != "5550" || ports[1] != "5551" {
		t.Errorf("got %v", ports)
	}
	if parseReplayPorts("") != nil {
		t.Errorf("empty list should be nil")
	}
}

func TestPortsString(t *testing.T) {
	if s := portsString([]int{5550, 5551}); s != "5550,5551" {
		t.Errorf("got %q", s)
	}
	if s := portsString(nil); s != "" {
		t.Errorf("got %q", s)
	}
}

func TestDisplayKey(t *testing.T) {
	if displayKey("") != "unclassified" {
		t.Errorf("empty key should display as unclassified")
	}
	if displayKey("52") != "52" {
		t.Errorf("keys should pass through")
	}
}

func TestAddSingleSystemErrorf(t *testing.T) {
	before := len(globalStatus.Errors)
	addSingleSystemErrorf("errtest", "first failure: %d", 1)
	addSingleSystemErrorf("errtest", "second failure: %d", 2)
	if got := len(globalStatus.Errors) - before; got != 1 {
		t.Errorf("recorded %d errors for one ident, want 1", got)
	}
	if last := globalStatus.Errors[len(globalStatus.Errors)-1]; last != "first failure: 1" {
		t.Errorf("recorded error = %q, want the first occurrence", last)
	}
}

func TestProcessMessage(t *testing.T) {
	dir := t.TempDir()
	settingsPath = ""
	defaultSettings()
	globalSettings.OutputDir = dir
	splitScheme = acars.ByLabel
	splitClock = NewMonotonic()
	msgFeed = NewUIBroadcaster()
	msgRouter = &acars.Router{Dir: dir, Scheme: acars.ByLabel, Append: true, FlatNames: true}
	defer msgRouter.Close()
	portStatsMutex.Lock()
	portStats[5550] = &portStat{Port: 5550}
	portStatsMutex.Unlock()

	raw := "00:16:25 18-03-25 UTC AES:E4920F GES:D0 2 ..PTZNG 2 52 A\nMETAR EDDF 180020Z"
	before := globalStatus.Messages_processed
	processMessage(5550, raw)

	if globalStatus.Messages_processed != before+1 {
		t.Errorf("message not counted")
	}
	data, err := os.ReadFile(filepath.Join(dir, "acars_52.txt"))
	if err != nil {
		t.Fatalf("bucket file not written: %v", err)
	}
	if !strings.Contains(string(data), "METAR EDDF") {
		t.Errorf("bucket file missing message text: %q", string(data))
	}
	portStatsMutex.Lock()
	if portStats[5550].Messages_processed != 1 {
		t.Errorf("port stat not bumped")
	}
	portStatsMutex.Unlock()
}
