package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lalithlochan/aquamon/internal/apperr"
)

var sensorDisplayNames = map[string]string{
	"temperature": "Temperatura",
	"ph":          "pH",
	"oxygen":      "Oxígeno disuelto",
	"turbidity":   "Turbidez",
	"humidity":    "Humedad",
	"proximity":   "Nivel de agua",
	"tds":         "Sólidos disueltos",
}

var sensorUnits = map[string]string{
	"temperature": "°C",
	"humidity":    "%",
	"turbidity":   "NTU",
	"oxygen":      "mg/L",
	"tds":         "mg/L",
	"proximity":   "cm",
	"ph":          "",
}

// SensorAlertInput describes an out-of-range reading for one recipient
type SensorAlertInput struct {
	Recipient  string  `json:"recipientToken"`
	ModuleID   int64   `json:"moduleId"`
	ModuleName string  `json:"moduleName"`
	SensorID   int64   `json:"sensorId"`
	SensorType string  `json:"sensorType"`
	Value      float64 `json:"value"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	// Violation is "below_min" or "above_max"; anything else reads as out of range
	Violation string `json:"violation,omitempty"`
}

// SensorAlert describes a reading outside its threshold range
type SensorAlert struct {
	base
	input SensorAlertInput
}

func newSensorAlert(in SensorAlertInput) (*SensorAlert, error) {
	if strings.TrimSpace(in.SensorType) == "" {
		return nil, apperr.Missing("sensorType")
	}

	sensorType := strings.ToLower(strings.TrimSpace(in.SensorType))
	display := DisplayName(sensorType)
	unit := sensorUnits[sensorType]

	a := &SensorAlert{
		base: base{
			recipient: in.Recipient,
			kind:      TypeSensorAlert,
			title:     "Alerta de " + display,
			body: fmt.Sprintf("%s reading of %s%s is %s on module %s. Allowed range: %s-%s%s.",
				display,
				formatNumber(in.Value), unit,
				violationPhrase(in),
				moduleLabel(in.ModuleID, in.ModuleName),
				formatNumber(in.Min), formatNumber(in.Max), unit,
			),
			data: map[string]any{
				"moduleId":   in.ModuleID,
				"sensorId":   in.SensorID,
				"sensorType": sensorType,
				"value":      in.Value,
				"min":        in.Min,
				"max":        in.Max,
				"unit":       unit,
				"violation":  in.Violation,
			},
		},
		input: in,
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// SensorID returns the sensor that produced the reading
func (a *SensorAlert) SensorID() int64 { return a.input.SensorID }

// DisplayName returns the localized label for a sensor type, or the raw type
func DisplayName(sensorType string) string {
	if name, ok := sensorDisplayNames[strings.ToLower(sensorType)]; ok {
		return name
	}
	return sensorType
}

func violationPhrase(in SensorAlertInput) string {
	switch in.Violation {
	case "below_min":
		return "below the minimum"
	case "above_max":
		return "above the maximum"
	}
	switch {
	case in.Value < in.Min:
		return "below the minimum"
	case in.Value > in.Max:
		return "above the maximum"
	}
	return "out of range"
}

// formatNumber renders v with at least one decimal place: 35 -> "35.0", 7.25 -> "7.25"
func formatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func moduleLabel(id int64, name string) string {
	if name != "" {
		return name
	}
	return "#" + strconv.FormatInt(id, 10)
}
