package appliance

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-irbridge/internal/codes"
	"github.com/nerrad567/gray-logic-irbridge/internal/sensor"
)

// Accessory type names as written in the accessories file.
const (
	TypeSwitch            = "switch"
	TypeFan               = "fan"
	TypeAirPurifier       = "air-purifier"
	TypeHumidifier        = "humidifier-dehumidifier"
	TypeAirConditioner    = "air-conditioner"
	TypeHeaterCooler      = "heater-cooler"
	TypeTemperatureSensor = "temperatureSensor"
	TypeHumiditySensor    = "humiditySensor"
)

// File is the accessories file: the transport devices and the accessories
// driven through them.
type File struct {
	Hosts       []HostConfig `yaml:"hosts"`
	Accessories []Spec       `yaml:"accessories"`
}

// HostConfig identifies one transport device.
type HostConfig struct {
	Address string `yaml:"address"`
	MAC     string `yaml:"mac"`
}

// Spec is one undecoded accessory entry. The type selects the typed
// configuration it is decoded into.
type Spec struct {
	Type string
	Name string

	node yaml.Node
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	var head struct {
		Type string `yaml:"type"`
		Name string `yaml:"name"`
	}
	if err := node.Decode(&head); err != nil {
		return err
	}
	s.Type = head.Type
	s.Name = head.Name
	s.node = *node
	return nil
}

// Decode decodes the full entry into a typed configuration.
func (s Spec) Decode(into any) error {
	if err := s.node.Decode(into); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, s.Name, err)
	}
	return nil
}

// LoadFile reads and parses an accessories file. JSON files are accepted.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from service configuration
	if err != nil {
		return nil, fmt.Errorf("reading accessories file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile parses accessories file content.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing accessories file: %w", err)
	}
	return &f, nil
}

// Common holds the settings every accessory shares.
type Common struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// Host selects the transport device by address or MAC. Empty selects
	// the first configured device.
	Host string `yaml:"host"`

	Data *codes.Entry `yaml:"data"`

	PreventResendHex bool  `yaml:"preventResendHex"`
	AllowResend      *bool `yaml:"allowResend"`

	// LogLevel is one of none, critical, error, warning, info, debug, trace.
	LogLevel string `yaml:"logLevel"`

	// NoHistory disables reading history for this accessory.
	NoHistory bool `yaml:"noHistory"`
}

// PreventResend reports whether unchanged values are skipped. allowResend
// takes precedence over preventResendHex.
func (c Common) PreventResend() bool {
	if c.AllowResend != nil {
		return !*c.AllowResend
	}
	return c.PreventResendHex
}

func (c Common) validate() []string {
	var errs []string
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, "name is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "none", "critical", "error", "warning", "info", "debug", "trace":
	default:
		errs = append(errs, fmt.Sprintf("logLevel %q is not recognised", c.LogLevel))
	}
	return errs
}

// PowerConfig configures the on/off core shared by switches, fans, air
// purifiers and humidifiers.
type PowerConfig struct {
	PingIPAddress          string  `yaml:"pingIPAddress"`
	PingIPAddressStateOnly bool    `yaml:"pingIPAddressStateOnly"`
	PingUseArp             bool    `yaml:"pingUseArp"`
	PingFrequency          float64 `yaml:"pingFrequency"`
	PingGrace              float64 `yaml:"pingGrace"`

	EnableAutoOff       *bool   `yaml:"enableAutoOff"`
	EnableAutoOn        *bool   `yaml:"enableAutoOn"`
	DisableAutomaticOff *bool   `yaml:"disableAutomaticOff"`
	DisableAutomaticOn  *bool   `yaml:"disableAutomaticOn"`
	OnDuration          float64 `yaml:"onDuration"`
	OffDuration         float64 `yaml:"offDuration"`
}

func (p *PowerConfig) applyDefaults() {
	if p.PingFrequency <= 0 {
		p.PingFrequency = 1
	}
	if p.PingGrace <= 0 {
		p.PingGrace = 10
	}
	if p.OnDuration <= 0 {
		p.OnDuration = 60
	}
	if p.OffDuration <= 0 {
		p.OffDuration = 60
	}
}

// AutoOff reports whether the device switches itself off after OnDuration.
// The legacy disableAutomaticOff key wins when both are set.
func (p PowerConfig) AutoOff() bool {
	if p.DisableAutomaticOff != nil {
		return !*p.DisableAutomaticOff
	}
	return p.EnableAutoOff != nil && *p.EnableAutoOff
}

// AutoOn reports whether the device switches itself on after OffDuration.
func (p PowerConfig) AutoOn() bool {
	if p.DisableAutomaticOn != nil {
		return !*p.DisableAutomaticOn
	}
	return p.EnableAutoOn != nil && *p.EnableAutoOn
}

// SwitchConfig configures a switch.
type SwitchConfig struct {
	Common      `yaml:",inline"`
	PowerConfig `yaml:",inline"`
}

func (c *SwitchConfig) applyDefaults() {
	c.PowerConfig.applyDefaults()
}

// Validate checks the configuration.
func (c *SwitchConfig) Validate() error {
	return joinConfigErrors(c.Name, c.Common.validate())
}

// FanConfig configures a fan.
type FanConfig struct {
	Common      `yaml:",inline"`
	PowerConfig `yaml:",inline"`

	DefaultFanSpeed       int  `yaml:"defaultFanSpeed"`
	StepSize              int  `yaml:"stepSize"`
	AlwaysResetToDefaults bool `yaml:"alwaysResetToDefaults"`

	HideSwingMode         bool `yaml:"hideSwingMode"`
	HideRotationDirection bool `yaml:"hideRotationDirection"`
}

func (c *FanConfig) applyDefaults() {
	c.PowerConfig.applyDefaults()
	if c.DefaultFanSpeed <= 0 {
		c.DefaultFanSpeed = 100
	}
	if c.StepSize < 1 || c.StepSize > 100 {
		c.StepSize = 1
	}
}

// Validate checks the configuration.
func (c *FanConfig) Validate() error {
	errs := c.Common.validate()
	if c.DefaultFanSpeed > 100 {
		errs = append(errs, fmt.Sprintf("defaultFanSpeed %d must be at most 100", c.DefaultFanSpeed))
	}
	return joinConfigErrors(c.Name, errs)
}

// AirPurifierConfig configures an air purifier.
type AirPurifierConfig struct {
	FanConfig `yaml:",inline"`

	// ShowLockPhysicalControls exposes the lock unless set to false.
	ShowLockPhysicalControls *bool `yaml:"showLockPhysicalControls"`
}

// HumidifierConfig configures a humidifier/dehumidifier.
type HumidifierConfig struct {
	FanConfig    `yaml:",inline"`
	SensorConfig `yaml:",inline"`

	HumidifierOnly   bool `yaml:"humidifierOnly"`
	DeHumidifierOnly bool `yaml:"deHumidifierOnly"`

	HumidityUpdateFrequency float64 `yaml:"humidityUpdateFrequency"`

	// Thresholds, in percent relative humidity. Below the humidifier
	// threshold the device humidifies, above the dehumidifier threshold it
	// dehumidifies.
	HumidifierThreshold   *float64 `yaml:"humidifierThreshold"`
	DehumidifierThreshold *float64 `yaml:"dehumidifierThreshold"`

	// EnableAutoOnOff lets humidity readings power the device on and off
	// at the thresholds.
	EnableAutoOnOff          bool    `yaml:"enableAutoOnOff"`
	MinimumAutoOnOffDuration float64 `yaml:"minimumAutoOnOffDuration"`
}

func (c *HumidifierConfig) applyDefaults() {
	c.FanConfig.applyDefaults()
	c.SensorConfig.applyDefaults()
	if c.HumidityUpdateFrequency <= 0 {
		c.HumidityUpdateFrequency = 10
	}
	if c.HumidifierThreshold == nil {
		c.HumidifierThreshold = floatPtr(0)
	}
	if c.DehumidifierThreshold == nil {
		c.DehumidifierThreshold = floatPtr(100)
	}
	if c.MinimumAutoOnOffDuration <= 0 {
		c.MinimumAutoOnOffDuration = 120
	}
}

// Validate checks the configuration.
func (c *HumidifierConfig) Validate() error {
	errs := c.Common.validate()
	if c.HumidifierOnly && c.DeHumidifierOnly {
		errs = append(errs, "humidifierOnly and deHumidifierOnly cannot both be set")
	}
	if *c.HumidifierThreshold > *c.DehumidifierThreshold {
		errs = append(errs, fmt.Sprintf("humidifierThreshold (%v) must not exceed dehumidifierThreshold (%v)",
			*c.HumidifierThreshold, *c.DehumidifierThreshold))
	}
	errs = append(errs, c.SensorConfig.validate()...)
	return joinConfigErrors(c.Name, errs)
}

// SensorConfig selects where temperature and humidity readings come from.
// The first configured source wins: pseudo value, file, 1-Wire, message bus,
// then the transport device.
type SensorConfig struct {
	PseudoDeviceTemperature *float64 `yaml:"pseudoDeviceTemperature"`
	TemperatureFilePath     string   `yaml:"temperatureFilePath"`
	W1DeviceID              string   `yaml:"w1DeviceID"`
	MQTTTopic               Topics   `yaml:"mqttTopic"`

	TemperatureUpdateFrequency float64 `yaml:"temperatureUpdateFrequency"`
	TemperatureAdjustment      float64 `yaml:"temperatureAdjustment"`
	HumidityAdjustment         float64 `yaml:"humidityAdjustment"`
	NoHumidity                 bool    `yaml:"noHumidity"`

	// Units is the display unit, "c" or "f".
	Units string `yaml:"units"`
}

func (s *SensorConfig) applyDefaults() {
	switch {
	case s.TemperatureUpdateFrequency > 0:
	case len(s.MQTTTopic) > 0:
		s.TemperatureUpdateFrequency = 600
	default:
		s.TemperatureUpdateFrequency = 10
	}
	if s.W1DeviceID != "" {
		s.NoHumidity = true
	}
	if (s.W1DeviceID != "" || s.TemperatureFilePath != "") && s.TemperatureUpdateFrequency < 60 {
		s.TemperatureUpdateFrequency = 60
	}
	s.Units = strings.ToLower(s.Units)
	if s.Units == "" {
		s.Units = "c"
	}
}

func (s SensorConfig) validate() []string {
	var errs []string
	if s.Units != "" && s.Units != "c" && s.Units != "f" {
		errs = append(errs, fmt.Sprintf("units %q must be c or f", s.Units))
	}
	for _, t := range s.MQTTTopic {
		switch t.Identifier {
		case sensor.IdentifierUnknown, sensor.IdentifierTemperature, sensor.IdentifierHumidity,
			sensor.IdentifierBattery, sensor.IdentifierCombined:
		default:
			errs = append(errs, fmt.Sprintf("mqttTopic identifier %q is not recognised", t.Identifier))
		}
		if t.Topic == "" {
			errs = append(errs, "mqttTopic entries need a topic")
		}
	}
	return errs
}

func (s SensorConfig) updateInterval() time.Duration {
	return time.Duration(s.TemperatureUpdateFrequency * float64(time.Second))
}

// TopicBinding subscribes one message bus topic under an identifier.
type TopicBinding struct {
	Identifier string `yaml:"identifier"`
	Topic      string `yaml:"topic"`
}

// Topics is the mqttTopic setting: either a single topic string, bound to
// the "unknown" identifier, or a list of bindings.
type Topics []TopicBinding

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Topics) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Value == "" {
			*t = nil
			return nil
		}
		*t = Topics{{Identifier: sensor.IdentifierUnknown, Topic: node.Value}}
		return nil
	}

	var list []TopicBinding
	if err := node.Decode(&list); err != nil {
		return err
	}
	for i := range list {
		list[i].Identifier = strings.ToLower(list[i].Identifier)
		if list[i].Identifier == "" {
			list[i].Identifier = sensor.IdentifierUnknown
		}
	}
	*t = list
	return nil
}

// AirConConfig configures an air conditioner.
type AirConConfig struct {
	Common       `yaml:",inline"`
	SensorConfig `yaml:",inline"`

	MinTemperature         *float64 `yaml:"minTemperature"`
	MaxTemperature         *float64 `yaml:"maxTemperature"`
	DefaultCoolTemperature float64  `yaml:"defaultCoolTemperature"`
	DefaultHeatTemperature float64  `yaml:"defaultHeatTemperature"`
	HeatTemperature        float64  `yaml:"heatTemperature"`

	TurnOnWhenOff            *bool  `yaml:"turnOnWhenOff"`
	SendOnWhenOff            bool   `yaml:"sendOnWhenOff"`
	ReplaceAutoMode          string `yaml:"replaceAutoMode"`
	IgnoreTemperatureWhenOff bool   `yaml:"ignoreTemperatureWhenOff"`
	HeatOnly                 bool   `yaml:"heatOnly"`
	CoolOnly                 bool   `yaml:"coolOnly"`

	AutoHeatTemperature      *float64 `yaml:"autoHeatTemperature"`
	AutoCoolTemperature      *float64 `yaml:"autoCoolTemperature"`
	MinimumAutoOnOffDuration float64  `yaml:"minimumAutoOnOffDuration"`
	AutoMinimumDuration      float64  `yaml:"autoMinimumDuration"`
	AutoSwitchName           string   `yaml:"autoSwitchName"`
	AutoSwitch               string   `yaml:"autoSwitch"`
}

func (c *AirConConfig) applyDefaults() {
	c.SensorConfig.applyDefaults()
	if c.TurnOnWhenOff == nil {
		c.TurnOnWhenOff = boolPtr(c.SendOnWhenOff)
	}
	if c.MinimumAutoOnOffDuration <= 0 {
		c.MinimumAutoOnOffDuration = c.AutoMinimumDuration
	}
	if c.MinimumAutoOnOffDuration <= 0 {
		c.MinimumAutoOnOffDuration = 120
	}
	if c.MinTemperature == nil {
		c.MinTemperature = floatPtr(-15)
	}
	if c.MaxTemperature == nil {
		c.MaxTemperature = floatPtr(50)
	}
	if c.DefaultCoolTemperature == 0 {
		c.DefaultCoolTemperature = 16
	}
	if c.DefaultHeatTemperature == 0 {
		c.DefaultHeatTemperature = 30
	}
	if c.HeatTemperature == 0 {
		c.HeatTemperature = 22
	}
	if c.AutoSwitch != "" {
		c.AutoSwitchName = c.AutoSwitch
	}
	c.ReplaceAutoMode = strings.ToLower(c.ReplaceAutoMode)
}

// Validate checks the configuration.
func (c *AirConConfig) Validate() error {
	errs := c.Common.validate()
	errs = append(errs, c.SensorConfig.validate()...)

	minT, maxT := *c.MinTemperature, *c.MaxTemperature
	if minT >= maxT {
		errs = append(errs, fmt.Sprintf("maxTemperature (%v) must be more than minTemperature (%v)", maxT, minT))
	}
	if p := c.PseudoDeviceTemperature; p != nil && (*p < minT || *p > maxT) {
		errs = append(errs, fmt.Sprintf("pseudoDeviceTemperature (%v) must be within %v..%v", *p, minT, maxT))
	}
	if c.AutoHeatTemperature != nil && c.AutoCoolTemperature != nil && *c.AutoHeatTemperature >= *c.AutoCoolTemperature {
		errs = append(errs, fmt.Sprintf("autoHeatTemperature (%v) must be less than autoCoolTemperature (%v)",
			*c.AutoHeatTemperature, *c.AutoCoolTemperature))
	}
	if c.HeatOnly && c.CoolOnly {
		errs = append(errs, "heatOnly and coolOnly cannot both be set")
	}
	switch c.ReplaceAutoMode {
	case "", codes.ModeHeat, codes.ModeCool:
	default:
		errs = append(errs, fmt.Sprintf("replaceAutoMode %q must be heat or cool", c.ReplaceAutoMode))
	}
	if *c.TurnOnWhenOff && c.Data.Code("on").IsZero() {
		errs = append(errs, "turnOnWhenOff requires an \"on\" code")
	}
	if !c.CoolOnly {
		errs = append(errs, c.fallbackErrors(codes.ModeHeat, "defaultHeatTemperature", c.DefaultHeatTemperature)...)
	}
	if !c.HeatOnly {
		errs = append(errs, c.fallbackErrors(codes.ModeCool, "defaultCoolTemperature", c.DefaultCoolTemperature)...)
	}
	for _, key := range c.Data.Keys() {
		e := c.Data.Get(key)
		if !e.IsTable() {
			continue
		}
		if _, err := codes.PseudoMode(e); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	return joinConfigErrors(c.Name, errs)
}

// fallbackErrors checks that the default temperature of mode has a code,
// since every unmatched target temperature falls back to it.
func (c *AirConConfig) fallbackErrors(mode, setting string, temp float64) []string {
	if _, _, err := codes.TemperatureCode(c.Data, mode, temp, c.Defaults()); err != nil {
		return []string{fmt.Sprintf("%s (%v) has no %s code: %v", setting, temp, mode, err)}
	}
	return nil
}

// Defaults returns the fallback temperature selection.
func (c *AirConConfig) Defaults() codes.TemperatureDefaults {
	return codes.TemperatureDefaults{
		HeatTemperature: c.HeatTemperature,
		DefaultHeat:     c.DefaultHeatTemperature,
		DefaultCool:     c.DefaultCoolTemperature,
	}
}

// HeaterCoolerConfig configures a heater/cooler.
type HeaterCoolerConfig struct {
	Common       `yaml:",inline"`
	SensorConfig `yaml:",inline"`

	MinTemperature *float64 `yaml:"minTemperature"`
	MaxTemperature *float64 `yaml:"maxTemperature"`

	CoolingThresholdTemperature *float64 `yaml:"coolingThresholdTemperature"`
	HeatingThresholdTemperature *float64 `yaml:"heatingThresholdTemperature"`
	DefaultMode                 string   `yaml:"defaultMode"`
	DefaultRotationSpeed        int      `yaml:"defaultRotationSpeed"`
	DefaultNowTemperature       *float64 `yaml:"defaultNowTemperature"`

	// TemperatureUnits is the unit the temperature code keys are written in.
	TemperatureUnits string  `yaml:"temperatureUnits"`
	TurnOnWhenOff    *bool   `yaml:"turnOnWhenOff"`
	FanStepSize      int     `yaml:"fanStepSize"`
	TempStepSize     float64 `yaml:"tempStepSize"`
}

// applyDefaults fills in defaults and converts the configured temperatures
// to Celsius when temperatureUnits is f.
func (c *HeaterCoolerConfig) applyDefaults() {
	c.SensorConfig.applyDefaults()

	c.TemperatureUnits = strings.ToLower(c.TemperatureUnits)
	if c.TemperatureUnits != "f" {
		c.TemperatureUnits = "c"
	}
	toC := func(v *float64) *float64 {
		if v == nil || c.TemperatureUnits != "f" {
			return v
		}
		return floatPtr(codes.FToC(*v))
	}
	c.CoolingThresholdTemperature = toC(c.CoolingThresholdTemperature)
	c.HeatingThresholdTemperature = toC(c.HeatingThresholdTemperature)
	c.MinTemperature = toC(c.MinTemperature)
	c.MaxTemperature = toC(c.MaxTemperature)

	if c.MinTemperature == nil {
		c.MinTemperature = floatPtr(-15)
	}
	if c.MaxTemperature == nil {
		c.MaxTemperature = floatPtr(50)
	}
	if c.CoolingThresholdTemperature == nil {
		c.CoolingThresholdTemperature = floatPtr(30)
	}
	if c.HeatingThresholdTemperature == nil {
		c.HeatingThresholdTemperature = floatPtr(18)
	}
	if c.DefaultRotationSpeed <= 0 {
		c.DefaultRotationSpeed = 100
	}
	if c.TurnOnWhenOff == nil {
		c.TurnOnWhenOff = boolPtr(true)
	}
	if c.FanStepSize < 1 || c.FanStepSize > 100 {
		c.FanStepSize = 1
	}
	if c.TempStepSize <= 0 {
		c.TempStepSize = 1
	}
	c.DefaultMode = strings.ToLower(c.DefaultMode)
}

// Validate checks the configuration.
func (c *HeaterCoolerConfig) Validate() error {
	errs := c.Common.validate()
	errs = append(errs, c.SensorConfig.validate()...)

	if *c.MinTemperature >= *c.MaxTemperature {
		errs = append(errs, fmt.Sprintf("maxTemperature (%v) must be more than minTemperature (%v)",
			*c.MaxTemperature, *c.MinTemperature))
	}
	switch c.DefaultMode {
	case "", codes.ModeHeat, codes.ModeCool:
	default:
		errs = append(errs, fmt.Sprintf("defaultMode %q must be heat or cool", c.DefaultMode))
	}

	heat, cool := c.Data.Get(codes.ModeHeat), c.Data.Get(codes.ModeCool)
	if heat.IsEmpty() && cool.IsEmpty() {
		errs = append(errs, "at least one of the heat and cool code tables is required")
	}
	for mode, table := range map[string]*codes.Entry{codes.ModeHeat: heat, codes.ModeCool: cool} {
		if table.IsEmpty() {
			continue
		}
		if !table.Has("on") || !table.Has("off") {
			errs = append(errs, fmt.Sprintf("%s needs both on and off codes", mode))
		}
	}
	return joinConfigErrors(c.Name, errs)
}

// TemperatureSensorConfig configures a temperature sensor.
type TemperatureSensorConfig struct {
	Common       `yaml:",inline"`
	SensorConfig `yaml:",inline"`
}

func (c *TemperatureSensorConfig) applyDefaults() {
	c.SensorConfig.applyDefaults()
}

// Validate checks the configuration.
func (c *TemperatureSensorConfig) Validate() error {
	errs := append(c.Common.validate(), c.SensorConfig.validate()...)
	return joinConfigErrors(c.Name, errs)
}

// HumiditySensorConfig configures a humidity sensor.
type HumiditySensorConfig struct {
	Common       `yaml:",inline"`
	SensorConfig `yaml:",inline"`

	HumidityUpdateFrequency float64 `yaml:"humidityUpdateFrequency"`
}

func (c *HumiditySensorConfig) applyDefaults() {
	c.SensorConfig.applyDefaults()
	if c.HumidityUpdateFrequency <= 0 {
		c.HumidityUpdateFrequency = 10
	}
}

// Validate checks the configuration.
func (c *HumiditySensorConfig) Validate() error {
	errs := append(c.Common.validate(), c.SensorConfig.validate()...)
	return joinConfigErrors(c.Name, errs)
}

func joinConfigErrors(name string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, name, strings.Join(errs, "; "))
}

func floatPtr(v float64) *float64 { return &v }

func boolPtr(v bool) *bool { return &v }
