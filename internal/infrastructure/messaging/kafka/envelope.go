package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/SafeScan/pkg/errors"
)

// EventValidationLogged marks an envelope carrying one ValidationRecord.
const EventValidationLogged = "validation.logged"

const envelopeVersion = "v1"

// Envelope is the JSON wrapper around every payload SafeScan publishes. The
// type and version are repeated as headers so consumers can filter without
// decoding the body.
type Envelope struct {
	ID        string          `json:"event_id"`
	Type      string          `json:"event_type"`
	Source    string          `json:"source"`
	Version   string          `json:"schema_version"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Seal encodes payload into a new envelope.
func Seal(eventType, source string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode event payload")
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Version:   envelopeVersion,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}, nil
}

// Message renders the envelope for publishing on topic.
func (e *Envelope) Message(topic string, key []byte) (*ProducerMessage, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode envelope")
	}
	return &ProducerMessage{
		Topic: topic,
		Key:   key,
		Value: val,
		Headers: map[string]string{
			"event_type":     e.Type,
			"source_service": e.Source,
			"schema_version": e.Version,
		},
		Timestamp: e.Timestamp,
	}, nil
}

// Decode unmarshals the payload into target.
func (e *Envelope) Decode(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return errors.New(errors.ErrCodeValidation, "event payload is empty").WithDetail(e.ID)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode event payload")
	}
	return nil
}

// OpenEnvelope decodes a consumed message.
func OpenEnvelope(msg *Message) (*Envelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode envelope")
	}
	return &env, nil
}
