package event

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Broadcast event names used as wire discriminators between clients.
const (
	NameOpenTopicDialog  = "open_topic_dialog"
	NameTopicClosed      = "topic_closed"
	NameRoundBegins      = "round_begins"
	NameRoundIDUpdate    = "round_id_update"
	NameGuessAdded       = "guess_added"
	NamePredictionUpdate = "prediction_update"
	NameRoundEnds        = "round_ends"
	NameCanvasClear      = "canvas_clear"
)

// ErrUnknownEvent marks payloads with a discriminator this client does not
// understand. Receivers drop such events instead of failing.
type ErrUnknownEvent struct{ Name string }

func (e *ErrUnknownEvent) Error() string { return fmt.Sprintf("unknown event %q", e.Name) }

// Event is the closed set of broadcast payloads. Each variant carries a fixed
// field set; anything extra on the wire is ignored.
type Event interface {
	EventName() string
}

// OpenTopicDialog tells every client a round is being set up and who draws.
type OpenTopicDialog struct {
	DrawerID string `json:"drawer_id"`
}

// RoundBegins carries the new round's identity. Topic text is intentionally
// absent: receivers re-fetch the round by id rather than trust the payload.
type RoundBegins struct {
	RoundID string `json:"round_id"`
	SentBy  string `json:"sent_by"`
}

// TopicClosed closes the drawer's topic dialog on every client.
type TopicClosed struct{}

// RoundIDUpdate republishes the active round id for late joiners.
type RoundIDUpdate struct {
	RoundID string `json:"round_id"`
}

// GuessAdded is a display-only echo of a durable guess upsert.
type GuessAdded struct {
	RoundID   string `json:"round_id"`
	ProfileID string `json:"profile_id"`
	Text      string `json:"text"`
}

// PredictionUpdate carries the AI's latest label and similarity score.
type PredictionUpdate struct {
	RoundID    string  `json:"round_id"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Similarity float64 `json:"similarity"`
}

// RoundEnds moves every client to the review stage.
type RoundEnds struct {
	RoundID string `json:"round_id"`
}

// CanvasClear wipes the local canvas on every client.
type CanvasClear struct{}

func (OpenTopicDialog) EventName() string  { return NameOpenTopicDialog }
func (TopicClosed) EventName() string      { return NameTopicClosed }
func (RoundBegins) EventName() string      { return NameRoundBegins }
func (RoundIDUpdate) EventName() string    { return NameRoundIDUpdate }
func (GuessAdded) EventName() string       { return NameGuessAdded }
func (PredictionUpdate) EventName() string { return NamePredictionUpdate }
func (RoundEnds) EventName() string        { return NameRoundEnds }
func (CanvasClear) EventName() string      { return NameCanvasClear }

// Envelope is the wire frame for a broadcast event.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps an event into its wire envelope.
func Encode(ev Event) (Envelope, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", ev.EventName(), err)
	}
	return Envelope{Event: ev.EventName(), Payload: raw}, nil
}

// Decode maps an envelope back onto its typed variant. Unknown discriminators
// return *ErrUnknownEvent; malformed payloads return the unmarshal error.
func Decode(env Envelope) (Event, error) {
	name := strings.TrimSpace(env.Event)
	var ev Event
	switch name {
	case NameOpenTopicDialog:
		ev = &OpenTopicDialog{}
	case NameTopicClosed:
		return &TopicClosed{}, nil
	case NameRoundBegins:
		ev = &RoundBegins{}
	case NameRoundIDUpdate:
		ev = &RoundIDUpdate{}
	case NameGuessAdded:
		ev = &GuessAdded{}
	case NamePredictionUpdate:
		ev = &PredictionUpdate{}
	case NameRoundEnds:
		ev = &RoundEnds{}
	case NameCanvasClear:
		return &CanvasClear{}, nil
	default:
		return nil, &ErrUnknownEvent{Name: name}
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return ev, nil
}
