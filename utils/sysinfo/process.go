package sysinfo

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// ResidentMemory returns this process's current resident set size in bytes.
// Sampling failures report zero; the value feeds a diagnostic suffix, not
// the metrics endpoint.
func ResidentMemory() uint64 {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}
