package sensor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// W1DevicesPath is where the kernel exposes 1-Wire slaves.
const W1DevicesPath = "/sys/bus/w1/devices"

var (
	bareNumber = regexp.MustCompile(`^[0-9]+\.*[0-9]*$`)
	w1Reading  = regexp.MustCompile(`t=(-?[0-9]+)`)
)

// FileSource reads a text file written by an external probe.
type FileSource struct {
	Path string
}

// Poll implements Source.
func (s FileSource) Poll(_ context.Context) (Reading, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Reading{}, fmt.Errorf("reading sensor file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses a sensor file. A first line holding only a number is the
// temperature; otherwise "temperature:", "humidity:" and "battery:" lines are
// read.
func ParseFile(data []byte) (Reading, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return Reading{}, fmt.Errorf("%w: empty sensor file", ErrNoValue)
	}

	lines := strings.Split(text, "\n")
	if bareNumber.MatchString(lines[0]) {
		v, err := strconv.ParseFloat(strings.TrimRight(lines[0], "."), 64)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: %v", ErrNoValue, err)
		}
		return Reading{Temperature: &v}, nil
	}

	var r Reading
	for _, line := range lines {
		key, raw, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			continue
		}
		switch key {
		case "temperature":
			r.Temperature = &v
		case "humidity":
			r.Humidity = &v
		case "battery":
			r.Battery = &v
		}
	}

	if r.Temperature == nil && r.Humidity == nil && r.Battery == nil {
		return Reading{}, fmt.Errorf("%w: no recognised fields", ErrNoValue)
	}
	return r, nil
}

// W1Source reads a DS18B20-style 1-Wire probe.
type W1Source struct {
	DeviceID string

	// Root overrides W1DevicesPath.
	Root string
}

// Poll implements Source.
func (s W1Source) Poll(_ context.Context) (Reading, error) {
	root := s.Root
	if root == "" {
		root = W1DevicesPath
	}
	data, err := os.ReadFile(filepath.Join(root, s.DeviceID, "w1_slave"))
	if err != nil {
		return Reading{}, fmt.Errorf("reading w1 device: %w", err)
	}
	return ParseW1(data)
}

// ParseW1 extracts the "t=<millidegrees>" value of a w1_slave file.
func ParseW1(data []byte) (Reading, error) {
	m := w1Reading.FindSubmatch(data)
	if m == nil {
		return Reading{}, fmt.Errorf("%w: no t= field in w1 output", ErrNoValue)
	}
	milli, err := strconv.Atoi(string(m[1]))
	if err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrNoValue, err)
	}
	v := float64(milli) / 1000
	return Reading{Temperature: &v}, nil
}
