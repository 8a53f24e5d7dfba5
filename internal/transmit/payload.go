package transmit

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-irbridge/internal/delay"
)

const defaultRepeatInterval = 0.1

// Step is one entry of a paced sequence. Durations are in seconds.
type Step struct {
	Code      string  `yaml:"data" json:"data"`
	SendCount int     `yaml:"sendCount,omitempty" json:"sendCount,omitempty"`
	Interval  float64 `yaml:"interval,omitempty" json:"interval,omitempty"`
	Pause     float64 `yaml:"pause,omitempty" json:"pause,omitempty"`
}

// Repeats returns how many times the step's code is sent.
func (s Step) Repeats() int {
	if s.SendCount < 1 {
		return 1
	}
	return s.SendCount
}

// RepeatInterval returns the wait between repeats.
func (s Step) RepeatInterval() time.Duration {
	if s.Repeats() > 1 && s.Interval <= 0 {
		return delay.Seconds(defaultRepeatInterval)
	}
	return delay.Seconds(s.Interval)
}

// Payload is the unit handed to a Pipeline: a bare code or a step sequence.
type Payload struct {
	Code  string
	Steps []Step
}

// Code returns a payload for a single bare code.
func Code(code string) Payload {
	return Payload{Code: code}
}

// Sequence returns a payload made of steps.
func Sequence(steps ...Step) Payload {
	return Payload{Steps: steps}
}

// IsZero reports whether the payload carries nothing to send.
func (p Payload) IsZero() bool {
	return p.Code == "" && len(p.Steps) == 0
}

// IsSequence reports whether the payload is paced.
func (p Payload) IsSequence() bool {
	return len(p.Steps) > 0
}

// AsSteps returns the payload as a step list. A bare code becomes one step.
func (p Payload) AsSteps() []Step {
	if p.IsSequence() {
		out := make([]Step, len(p.Steps))
		copy(out, p.Steps)
		return out
	}
	if p.Code == "" {
		return nil
	}
	return []Step{{Code: p.Code}}
}

// Suspension returns the total time a sequence spends waiting.
// No interval is waited after the last repeat of a step.
func (p Payload) Suspension() time.Duration {
	var total time.Duration
	for _, s := range p.Steps {
		total += time.Duration(s.Repeats()-1) * s.RepeatInterval()
		total += delay.Seconds(s.Pause)
	}
	return total
}

// String renders the payload for logs.
func (p Payload) String() string {
	if !p.IsSequence() {
		return p.Code
	}
	return fmt.Sprintf("sequence(%d steps)", len(p.Steps))
}

// Prepend returns a sequence that sends first, waits pause seconds, then
// sends rest. When first is itself a sequence the pause replaces the pause of
// its last step.
func Prepend(first Payload, pause float64, rest Payload) Payload {
	steps := first.AsSteps()
	if len(steps) == 0 {
		return rest
	}
	steps[len(steps)-1].Pause = pause
	return Sequence(append(steps, rest.AsSteps()...)...)
}

// UnmarshalYAML accepts a scalar code, a sequence of steps, or a mapping
// whose "data" key holds either of those.
func (p *Payload) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var code string
		if err := node.Decode(&code); err != nil {
			return err
		}
		*p = Code(code)
		return nil
	case yaml.SequenceNode:
		var steps []Step
		if err := node.Decode(&steps); err != nil {
			return fmt.Errorf("decoding step sequence: %w", err)
		}
		*p = Sequence(steps...)
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "data" {
				return p.UnmarshalYAML(node.Content[i+1])
			}
		}
		return fmt.Errorf("line %d: code mapping has no data key", node.Line)
	case yaml.AliasNode:
		return p.UnmarshalYAML(node.Alias)
	default:
		return fmt.Errorf("line %d: unsupported code value", node.Line)
	}
}
