package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const InvalidCpuTemp = float32(-99.0)

type CpuTempUpdateFunc func(cpuTemp float32)

// readCpuTemp reads the SoC temperature from sysfs. Some kernels report
// millidegrees, some plain degrees.
func readCpuTemp() float32 {
	raw, err := os.ReadFile("/sys/class/thermal/thermal_zone0/temp")
	if err != nil {
		return InvalidCpuTemp
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return InvalidCpuTemp
	}
	if n > 1000 {
		return float32(n) / 1000.0
	}
	return float32(n)
}

// CpuTempMonitor polls the board temperature every second and hands
// valid readings to the callback. Run it as its own goroutine, reading
// the sysfs file can hang for a while on some boards.
func CpuTempMonitor(updater CpuTempUpdateFunc) {
	timer := time.NewTicker(1 * time.Second)
	for {
		if t := readCpuTemp(); t > InvalidCpuTemp {
			updater(t)
		}
		<-timer.C
	}
}

// IsCPUTempValid reports whether a reading is usable. Zero and below
// means the sensor wasn't readable.
func IsCPUTempValid(cpuTemp float32) bool {
	return cpuTemp > 0
}
