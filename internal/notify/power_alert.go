package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lalithlochan/aquamon/internal/apperr"
)

// Power event types
const (
	PowerOutage      = "outage"
	PowerRestored    = "restored"
	PowerLowBattery  = "low_battery"
	PowerVoltageDrop = "voltage_drop"
	PowerFluctuation = "power_fluctuation"
)

// Severities
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

var severityPrefixes = map[string]string{
	SeverityInfo:     "ℹ️",
	SeverityWarning:  "⚠️",
	SeverityError:    "❗",
	SeverityCritical: "🚨",
}

type powerText struct {
	title           string
	body            string // %s is the module label
	defaultSeverity string
}

var powerEvents = map[string]powerText{
	PowerOutage: {
		title:           "Power outage",
		body:            "Module %s has lost main power.",
		defaultSeverity: SeverityCritical,
	},
	PowerRestored: {
		title:           "Power restored",
		body:            "Main power has been restored on module %s.",
		defaultSeverity: SeverityInfo,
	},
	PowerLowBattery: {
		title:           "Low battery",
		body:            "The backup battery on module %s is running low.",
		defaultSeverity: SeverityWarning,
	},
	PowerVoltageDrop: {
		title:           "Voltage drop",
		body:            "A voltage drop was detected on module %s.",
		defaultSeverity: SeverityWarning,
	},
	PowerFluctuation: {
		title:           "Power fluctuation",
		body:            "Unstable power supply detected on module %s.",
		defaultSeverity: SeverityWarning,
	},
}

// PowerMetadata is optional detail reported with a power event
type PowerMetadata struct {
	BatteryLevel      *float64 `json:"batteryLevel,omitempty"`
	EstimatedDuration *float64 `json:"estimatedDuration,omitempty"` // minutes
	AffectedSensors   []string `json:"affectedSensors,omitempty"`
}

func (m PowerMetadata) empty() bool {
	return m.BatteryLevel == nil && m.EstimatedDuration == nil && len(m.AffectedSensors) == 0
}

// PowerAlertInput describes a power event on a module for one recipient
type PowerAlertInput struct {
	Recipient  string        `json:"recipientToken"`
	ModuleID   int64         `json:"moduleId"`
	ModuleName string        `json:"moduleName"`
	FarmID     int64         `json:"farmId,omitempty"`
	EventType  string        `json:"eventType"`
	Severity   string        `json:"severity,omitempty"`
	Metadata   PowerMetadata `json:"metadata"`
}

// PowerAlert describes a power outage or restoration on a module
type PowerAlert struct {
	base
	severity string
}

func newPowerAlert(in PowerAlertInput) (*PowerAlert, error) {
	event := strings.ToLower(strings.TrimSpace(in.EventType))
	if event == "" {
		return nil, apperr.Missing("eventType")
	}

	severity, err := ResolveSeverity(event, in.Severity)
	if err != nil {
		return nil, err
	}

	label := moduleLabel(in.ModuleID, in.ModuleName)
	var title, body string
	if text, ok := powerEvents[event]; ok {
		title = text.title
		body = fmt.Sprintf(text.body, label)
	} else {
		title = "Power event"
		body = fmt.Sprintf("Power event %q reported on module %s.", event, label)
	}

	data := map[string]any{
		"moduleId":  in.ModuleID,
		"eventType": event,
		"severity":  severity,
	}
	if in.FarmID != 0 {
		data["farmId"] = in.FarmID
	}
	if !in.Metadata.empty() {
		data["metadata"] = in.Metadata
	}

	a := &PowerAlert{
		base: base{
			recipient: in.Recipient,
			kind:      TypePowerAlert,
			title:     severityPrefixes[severity] + " " + title,
			body:      body + describeMetadata(in.Metadata),
			data:      data,
		},
		severity: severity,
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Severity returns the resolved severity
func (a *PowerAlert) Severity() string { return a.severity }

// ResolveSeverity applies the per-event default when severity is empty and
// rejects severities outside the known set.
func ResolveSeverity(event, severity string) (string, error) {
	severity = strings.ToLower(strings.TrimSpace(severity))
	if severity == "" {
		if text, ok := powerEvents[strings.ToLower(event)]; ok {
			return text.defaultSeverity, nil
		}
		return SeverityWarning, nil
	}
	if _, ok := severityPrefixes[severity]; !ok {
		return "", apperr.Invalid("severity", "must be one of info, warning, error, critical")
	}
	return severity, nil
}

func describeMetadata(m PowerMetadata) string {
	var b strings.Builder
	if m.BatteryLevel != nil {
		fmt.Fprintf(&b, " Battery level: %s%%.", strconv.FormatFloat(*m.BatteryLevel, 'f', -1, 64))
	}
	if m.EstimatedDuration != nil {
		fmt.Fprintf(&b, " Estimated duration: %s minutes.", strconv.FormatFloat(*m.EstimatedDuration, 'f', -1, 64))
	}
	if len(m.AffectedSensors) > 0 {
		fmt.Fprintf(&b, " Affected sensors: %s.", strings.Join(m.AffectedSensors, ", "))
	}
	return b.String()
}
