// Package notify builds typed notification payloads. Each kind is a concrete
// Variant constructed through Create; all of them share one validation routine.
package notify

import (
	"strings"

	"github.com/lalithlochan/aquamon/internal/apperr"
	"github.com/lalithlochan/aquamon/internal/db"
	"github.com/lalithlochan/aquamon/internal/push"
)

// Type is the stable tag stored on the notification record
type Type string

const (
	TypeFarm        Type = db.TypeFarm
	TypeSensorAlert Type = db.TypeSensorAlert
	TypePowerAlert  Type = db.TypePowerAlert
)

// Known reports whether t has a constructor
func (t Type) Known() bool {
	switch t {
	case TypeFarm, TypeSensorAlert, TypePowerAlert:
		return true
	}
	return false
}

// Variant is implemented only by *FarmEvent, *SensorAlert and *PowerAlert
type Variant interface {
	Recipient() string
	Title() string
	Body() string
	Data() map[string]any
	Type() Type
	Envelope() push.Envelope
	Validate() error

	sealed()
}

type base struct {
	recipient string
	title     string
	body      string
	data      map[string]any
	kind      Type
}

func (b *base) Recipient() string { return b.recipient }
func (b *base) Title() string     { return b.title }
func (b *base) Body() string      { return b.body }
func (b *base) Type() Type        { return b.kind }
func (b *base) sealed()           {}

// Data returns a copy of the payload with the type tag included
func (b *base) Data() map[string]any {
	out := make(map[string]any, len(b.data)+1)
	for k, v := range b.data {
		out[k] = v
	}
	out["type"] = string(b.kind)
	return out
}

func (b *base) Envelope() push.Envelope {
	return push.Envelope{
		Token: b.recipient,
		Notification: push.Notification{
			Title: b.title,
			Body:  b.body,
		},
		Data: b.Data(),
	}
}

func (b *base) Validate() error {
	switch {
	case strings.TrimSpace(b.recipient) == "":
		return apperr.Missing("recipient")
	case strings.TrimSpace(b.title) == "":
		return apperr.Missing("title")
	case strings.TrimSpace(b.body) == "":
		return apperr.Missing("body")
	case b.kind == "":
		return apperr.Missing("type")
	case !b.kind.Known():
		return apperr.Invalid("type", "is not a known notification type")
	}
	return nil
}
