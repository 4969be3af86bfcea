package notify

// FarmEventInput carries a caller-authored farm notification
type FarmEventInput struct {
	Recipient string         `json:"recipientToken"`
	FarmID    int64          `json:"farmId"`
	Event     string         `json:"event"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
}

type FarmEvent struct {
	base
	farmID int64
}

func newFarmEvent(in FarmEventInput) (*FarmEvent, error) {
	data := make(map[string]any, len(in.Data)+2)
	for k, v := range in.Data {
		data[k] = v
	}
	data["farmId"] = in.FarmID
	if in.Event != "" {
		data["event"] = in.Event
	}

	e := &FarmEvent{
		base: base{
			recipient: in.Recipient,
			title:     in.Title,
			body:      in.Body,
			data:      data,
			kind:      TypeFarm,
		},
		farmID: in.FarmID,
	}

	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// FarmID returns the farm the event concerns
func (e *FarmEvent) FarmID() int64 { return e.farmID }
