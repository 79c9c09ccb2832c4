// Package sensor reads temperatures from the Linux hwmon sysfs tree.
package sensor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNoSensor is returned when no chip with the requested name exposes a
// temperature input.
var ErrNoSensor = errors.New("sensor: not found")

// Reader returns the current temperature, in °C, of a named sensor chip.
type Reader interface {
	Temperature(name string) (float64, error)
}

// Chip is one hwmon device and its temperature inputs.
type Chip struct {
	Name   string    `json:"name"`
	Path   string    `json:"path"`
	Inputs []Reading `json:"inputs"`
}

// Reading is one tempN_input value.
type Reading struct {
	Index   int     `json:"index"`
	Label   string  `json:"label,omitempty"`
	Celsius float64 `json:"celsius"`
}

// Hwmon reads /sys/class/hwmon. Chips are matched by the contents of their
// "name" file (coretemp, k10temp, nvme, ...), and the first temperature input
// of the first matching chip is reported.
type Hwmon struct {
	root string
}

// NewHwmon creates a reader rooted at root (normally /sys/class/hwmon).
func NewHwmon(root string) *Hwmon {
	return &Hwmon{root: root}
}

// Temperature implements Reader.
func (h *Hwmon) Temperature(name string) (float64, error) {
	dirs, err := h.chipDirs()
	if err != nil {
		return 0, err
	}
	for _, dir := range dirs {
		if readSysfsString(filepath.Join(dir, "name")) != name {
			continue
		}
		inputs := readInputs(dir)
		if len(inputs) == 0 {
			continue
		}
		return inputs[0].Celsius, nil
	}
	return 0, fmt.Errorf("%w: %q under %s", ErrNoSensor, name, h.root)
}

// Chips lists every hwmon chip with at least one temperature input.
func (h *Hwmon) Chips() ([]Chip, error) {
	dirs, err := h.chipDirs()
	if err != nil {
		return nil, err
	}
	var out []Chip
	for _, dir := range dirs {
		inputs := readInputs(dir)
		if len(inputs) == 0 {
			continue
		}
		out = append(out, Chip{
			Name:   readSysfsString(filepath.Join(dir, "name")),
			Path:   dir,
			Inputs: inputs,
		})
	}
	return out, nil
}

func (h *Hwmon) chipDirs() ([]string, error) {
	entries, err := os.ReadDir(h.root)
	if err != nil {
		return nil, fmt.Errorf("read hwmon: %w", err)
	}
	dirs := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "hwmon") {
			dirs = append(dirs, filepath.Join(h.root, e.Name()))
		}
	}
	// hwmon10 sorts after hwmon9.
	sort.Slice(dirs, func(i, j int) bool {
		return hwmonIndex(dirs[i]) < hwmonIndex(dirs[j])
	})
	return dirs, nil
}

func hwmonIndex(dir string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(dir), "hwmon"))
	if err != nil {
		return 1 << 30
	}
	return n
}

// readInputs returns the chip's temperature inputs ordered by index.
// Values are millidegrees Celsius.
func readInputs(dir string) []Reading {
	matches, _ := filepath.Glob(filepath.Join(dir, "temp*_input"))
	var out []Reading
	for _, m := range matches {
		base := filepath.Base(m)
		idx, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "temp"), "_input"))
		if err != nil {
			continue
		}
		milli, ok := readSysfsInt(m)
		if !ok {
			continue
		}
		out = append(out, Reading{
			Index:   idx,
			Label:   readSysfsString(filepath.Join(dir, fmt.Sprintf("temp%d_label", idx))),
			Celsius: float64(milli) / 1000,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// readSysfsString reads a single-line sysfs file and returns its
// trimmed content. Returns "" on any error.
func readSysfsString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readSysfsInt(path string) (int, bool) {
	v, err := strconv.Atoi(readSysfsString(path))
	if err != nil {
		return 0, false
	}
	return v, true
}
