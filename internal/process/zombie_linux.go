//go:build linux

package process

import (
	"bytes"
	"os"
	"strconv"
)

// zombieState reports whether /proc/<pid>/status shows a zombie, which
// syscall.Kill(pid, 0) alone cannot distinguish from a live process.
func zombieState(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
