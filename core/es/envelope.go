package es

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Envelope is the serialized unit persisted by every EnvelopeStore.
// Data holds the JSON payload, Type names the payload for decoding and Name
// is the event name carried on the typed Event.
type Envelope struct {
	ID            string   `json:"id"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	CausationID   string   `json:"causation_id,omitempty"`
	StreamID      StreamID `json:"stream_id"`
	// Version is assigned by the store on append.
	Version Version `json:"version"`
	// Seq is the global position assigned by the store, when it has one.
	Seq        uint64          `json:"seq"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	Checksum   string          `json:"checksum,omitempty"`
}

func (e Envelope) Validate() error {
	if e.ID == "" {
		return errors.New("envelope id is empty")
	}
	if e.StreamID == "" {
		return errors.New("envelope stream id is empty")
	}
	if e.Type == "" {
		return errors.New("envelope type is empty")
	}
	if e.OccurredAt.IsZero() {
		return errors.New("envelope occurred at is zero")
	}
	return nil
}

// Seal stamps the checksum over the fields that make up the event content.
func (e Envelope) Seal() Envelope {
	e.Checksum = e.digest()
	return e
}

// Verify checks the checksum written by Seal. Unsealed envelopes pass.
func (e Envelope) Verify() error {
	if e.Checksum == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(e.Checksum), []byte(e.digest())) != 1 {
		return Corrupt(e.StreamID, "checksum mismatch at version %d", e.Version)
	}
	return nil
}

func (e Envelope) digest() string {
	h, _ := blake2b.New256(nil)
	for _, part := range [][]byte{[]byte(e.ID), []byte(e.Name), []byte(e.Type), e.Data, e.Metadata} {
		_, _ = fmt.Fprintf(h, "%d:", len(part))
		_, _ = h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
