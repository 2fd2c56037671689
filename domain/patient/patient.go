// Package patient is the reference domain: patients with a contact record
// and one address, event sourced through core/es and projected into a
// relational read model.
package patient

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/codewandler/esk/core/es"
)

const streamPrefix = "patient-"

type (
	Address struct {
		Street string `json:"street"`
		City   string `json:"city"`
		State  string `json:"state"`
		Zip    string `json:"zip"`
	}

	Patient struct {
		ID      uuid.UUID `json:"id"`
		Name    string    `json:"name"`
		Address Address   `json:"address"`
		Age     int32     `json:"age"`
		Phone   string    `json:"phone"`
		Email   string    `json:"email"`
	}

	State = es.Maybe[Patient]

	// Meta is attached to every patient event.
	Meta struct {
		Actor string `json:"actor,omitempty"`
	}

	// PatientMeta locates the read-model row of a patient in the log.
	PatientMeta struct {
		ID       uuid.UUID   `json:"id"`
		StreamID es.StreamID `json:"stream_id"`
		Version  es.Version  `json:"version"`
	}
)

func StreamFor(id uuid.UUID) es.StreamID { return es.StreamID(streamPrefix + id.String()) }

// KeyFromStream is the read-model key of a patient stream: the patient id.
func KeyFromStream(stream es.StreamID) (string, error) {
	id, err := IDFromStream(stream)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func IDFromStream(stream es.StreamID) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(string(stream), streamPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("stream %q is not a patient stream", stream)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("stream %q: %w", stream, err)
	}
	return id, nil
}
