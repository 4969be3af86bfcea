package push

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TopicPrefix marks a recipient token as a topic rather than a device
const TopicPrefix = "/topics/"

// MaxBatchSize is the most envelopes SendBatch accepts in one call
const MaxBatchSize = 500

// Envelope is the transport-ready form of a notification
type Envelope struct {
	Token        string         `json:"recipientToken"`
	Notification Notification   `json:"notification"`
	Data         map[string]any `json:"data,omitempty"`
}

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// IsTopic reports whether the envelope targets a topic
func (e Envelope) IsTopic() bool {
	return strings.HasPrefix(e.Token, TopicPrefix)
}

// Message is what a backend actually submits: exactly one of Token or Topic is
// set and every data value is a string.
type Message struct {
	Token string
	Topic string
	Title string
	Body  string
	Data  map[string]string
}

func toMessage(env Envelope) Message {
	msg := Message{
		Title: env.Notification.Title,
		Body:  env.Notification.Body,
		Data:  NormalizeData(env.Data),
	}
	if env.IsTopic() {
		msg.Topic = strings.TrimPrefix(env.Token, TopicPrefix)
	} else {
		msg.Token = env.Token
	}
	return msg
}

// NormalizeData stringifies every value because push payload fields only
// accept strings. Objects and arrays are JSON encoded, nil becomes "".
func NormalizeData(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(val)
	case fmt.Stringer:
		return val.String()
	case json.RawMessage:
		return string(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
