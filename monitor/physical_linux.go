//go:build linux

package monitor

import "golang.org/x/sys/unix"

// sysinfoSampler reads host memory load via the sysinfo(2) syscall.
type sysinfoSampler struct{}

func (sysinfoSampler) sample() (totalBytes, freeBytes uint64, ok bool) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, 0, false
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return uint64(si.Totalram) * unit, uint64(si.Freeram) * unit, true
}

func newPhysicalSampler() physicalSampler { return sysinfoSampler{} }
