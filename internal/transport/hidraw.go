package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Hidraw talks to a /dev/hidrawN node. The boards use unnumbered reports,
// so writes carry a leading 0x00 report ID.
type Hidraw struct {
	path string
	f    *os.File
	mu   sync.Mutex
}

// OpenHidraw opens a hidraw device node for read/write.
func OpenHidraw(path string) (*Hidraw, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	return &Hidraw{path: path, f: f}, nil
}

func (h *Hidraw) Write(block []byte) error {
	data, err := padBlock(block)
	if err != nil {
		return &Error{Op: "write", Path: h.path, Err: err}
	}
	report := make([]byte, 0, BlockSize+1)
	report = append(report, 0x00)
	report = append(report, data...)

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.f.Write(report); err != nil {
		return &Error{Op: "write", Path: h.path, Err: err}
	}
	return nil
}

func (h *Hidraw) Read() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	// Deadlines only apply when the node is pollable; hidraw is.
	_ = h.f.SetReadDeadline(time.Now().Add(readTimeout))
	buf := make([]byte, BlockSize)
	n, err := h.f.Read(buf)
	if err != nil {
		return nil, &Error{Op: "read", Path: h.path, Err: err}
	}
	return buf[:n], nil
}

func (h *Hidraw) Close() error {
	return h.f.Close()
}

// FindHidraw scans the hidraw sysfs class for a node whose HID_ID matches the
// vendor and product, returning its path under devDir.
func FindHidraw(sysRoot, devDir string, vendorID, productID uint16) (string, error) {
	entries, err := os.ReadDir(sysRoot)
	if err != nil {
		return "", &Error{Op: "open", Path: sysRoot, Err: err}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		vid, pid, ok := readHIDID(filepath.Join(sysRoot, name, "device", "uevent"))
		if !ok {
			continue
		}
		if vid == vendorID && pid == productID {
			return filepath.Join(devDir, name), nil
		}
	}
	return "", fmt.Errorf("%w: hidraw %04x:%04x", ErrNotFound, vendorID, productID)
}

// readHIDID parses the HID_ID line of a uevent file:
//
//	HID_ID=0003:0000264A:00001FA5
func readHIDID(path string) (vendorID, productID uint16, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		value, found := strings.CutPrefix(line, "HID_ID=")
		if !found {
			continue
		}
		parts := strings.Split(strings.TrimSpace(value), ":")
		if len(parts) != 3 {
			return 0, 0, false
		}
		var v, p uint32
		if _, err := fmt.Sscanf(parts[1], "%x", &v); err != nil {
			return 0, 0, false
		}
		if _, err := fmt.Sscanf(parts[2], "%x", &p); err != nil {
			return 0, 0, false
		}
		return uint16(v), uint16(p), true
	}
	return 0, 0, false
}
