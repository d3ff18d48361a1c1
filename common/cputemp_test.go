package common

import "testing"

func TestIsCPUTempValid(t *testing.T) {
	if IsCPUTempValid(InvalidCpuTemp) {
		t.Error("the invalid sentinel was accepted")
	}
	if IsCPUTempValid(0) {
		t.Error("a zero reading was accepted")
	}
	if !IsCPUTempValid(47.5) {
		t.Error("a plausible reading was rejected")
	}
}
