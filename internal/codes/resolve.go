package codes

import (
	"strconv"
	"strings"
)

// Characteristic names a dimension of appliance state that can select a
// branch of a hierarchical code table.
type Characteristic int

const (
	CharNone Characteristic = iota
	CharActive
	CharTargetState
	CharThreshold
	CharSwing
	CharRotationSpeed
)

func (c Characteristic) String() string {
	switch c {
	case CharActive:
		return "active"
	case CharTargetState:
		return "targetState"
	case CharThreshold:
		return "threshold"
	case CharSwing:
		return "swingMode"
	case CharRotationSpeed:
		return "rotationSpeed"
	default:
		return "none"
	}
}

// HierarchyState is the state that chooses between sibling branches.
type HierarchyState struct {
	Swing         bool
	RotationSpeed int
}

// Hierarchy is the order in which nested temperature entries are descended.
// Resolution consumes it from the end, so rotation speed is checked first.
var Hierarchy = []Characteristic{CharSwing, CharRotationSpeed}

// Resolve descends a hierarchical entry and returns the leaf to send.
//
// remaining is consumed from its end. For the characteristic being updated a
// toggle key wins over the state key, and a missing key means the change
// cannot be sent (found is false). For other characteristics a "do not
// disturb" key wins over the state key, and a missing key skips that level.
// Descent stops at a non-table entry or when remaining is exhausted.
//
// remaining is not modified.
func Resolve(e *Entry, remaining []Characteristic, updating Characteristic, st HierarchyState) (*Entry, bool) {
	if e == nil {
		return nil, false
	}
	if !e.IsTable() || len(remaining) == 0 {
		return e, true
	}

	last := len(remaining) - 1
	char, rest := remaining[last], remaining[:last:last]

	var toggle, dnd, stateKey string
	switch char {
	case CharRotationSpeed:
		toggle, dnd = "fanSpeedToggle", "fanSpeedDnd"
		stateKey = "rotationSpeed" + strconv.Itoa(st.RotationSpeed)
	case CharSwing:
		toggle, dnd = "swingToggle", "swingDnd"
		stateKey = "swingOff"
		if st.Swing {
			stateKey = "swingOn"
		}
	default:
		return e, true
	}

	if updating == char {
		if child := e.Get(toggle); child != nil {
			return Resolve(child, rest, CharNone, st)
		}
		if child := e.Get(stateKey); child != nil {
			return Resolve(child, rest, CharNone, st)
		}
		return nil, false
	}

	if child := e.Get(dnd); child != nil {
		return Resolve(child, rest, updating, st)
	}
	if child := e.Get(stateKey); child != nil {
		return Resolve(child, rest, updating, st)
	}
	return Resolve(e, rest, updating, st)
}

// Optional lists the optional characteristics a heater/cooler table supports.
type Optional struct {
	TemperatureCodes bool
	RotationSpeed    bool
	SwingMode        bool
	Sleep            bool
}

// Discover inspects a temperatureCodes table and reports which optional
// characteristics its key shapes imply. Each nested table sets at most one
// new flag, chosen by the first shape all its keys share.
func Discover(table *Entry) Optional {
	var o Optional
	discover(table, &o)
	return o
}

func discover(e *Entry, o *Optional) {
	if !e.IsTable() {
		return
	}
	keys := e.Keys()

	switch {
	case !o.TemperatureCodes && all(keys, isNumeric):
		o.TemperatureCodes = true
	case !o.RotationSpeed && all(keys, prefixed("rotationSpeed")):
		o.RotationSpeed = true
	case !o.SwingMode && all(keys, prefixed("swing")):
		o.SwingMode = true
	case !o.Sleep && all(keys, prefixed("sleep")):
		o.Sleep = true
	}

	for _, k := range keys {
		discover(e.Get(k), o)
	}
}

func all(keys []string, pred func(string) bool) bool {
	for _, k := range keys {
		if !pred(k) {
			return false
		}
	}
	return true
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func prefixed(p string) func(string) bool {
	return func(s string) bool { return strings.HasPrefix(s, p) }
}
