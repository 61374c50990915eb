//go:build linux

package proctitle

import (
	"bytes"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// linux truncates thread names to 15 bytes plus NUL
const linuxProcNameMax = 15

// Set renames the process so ps/top show which service a worker runs.
func Set(title string) error {
	title, err := normalize(title)
	if err != nil {
		return err
	}
	if len(os.Args) > 0 {
		os.Args[0] = title
	}

	b := make([]byte, linuxProcNameMax+1)
	copy(b, title)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0)
}

// Get returns the kernel's view of the process name.
func Get() (string, error) {
	b := make([]byte, linuxProcNameMax+1)
	if err := unix.Prctl(unix.PR_GET_NAME, uintptr(unsafe.Pointer(&b[0])), 0, 0, 0); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}
