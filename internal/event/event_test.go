package event

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	in := &PredictionUpdate{RoundID: "rnd-1", Label: "banana", Confidence: 0.8, Similarity: 0.6}
	env, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if env.Event != NamePredictionUpdate {
		t.Fatalf("event = %q", env.Event)
	}
	out, err := Decode(env)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := out.(*PredictionUpdate)
	if !ok {
		t.Fatalf("decoded type %T", out)
	}
	if *got != *in {
		t.Fatalf("roundtrip mismatch: %+v vs %+v", got, in)
	}
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode(Envelope{Event: "time_travel"})
	var unknown *ErrUnknownEvent
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if unknown.Name != "time_travel" {
		t.Fatalf("name = %q", unknown.Name)
	}
}

func TestDecodeIgnoresExtraFields(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"round_id": "rnd-9",
		"sent_by":  "alice",
		"debug":    true,
	})
	out, err := Decode(Envelope{Event: NameRoundBegins, Payload: payload})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rb := out.(*RoundBegins)
	if rb.RoundID != "rnd-9" || rb.SentBy != "alice" {
		t.Fatalf("decoded %+v", rb)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	if _, err := Decode(Envelope{Event: NameGuessAdded, Payload: json.RawMessage(`{"text":`)}); err == nil {
		t.Fatal("expected decode error")
	}
}
