package patient

import (
	"github.com/google/uuid"

	"github.com/codewandler/esk/core/es"
)

// EventName is the name carried by every patient event.
const EventName = "patient_event"

type (
	Event interface{ isPatientEvent() }

	Added struct {
		ID      uuid.UUID `json:"id"`
		Name    string    `json:"name"`
		Address Address   `json:"address"`
		Age     int32     `json:"age"`
		Phone   string    `json:"phone"`
		Email   string    `json:"email"`
	}

	Updated struct {
		Name  string `json:"name"`
		Age   int32  `json:"age"`
		Phone string `json:"phone"`
		Email string `json:"email"`
	}

	AddressUpdated struct {
		Address Address `json:"address"`
	}
)

func (Added) EventType() string          { return "patient.added" }
func (Updated) EventType() string        { return "patient.updated" }
func (AddressUpdated) EventType() string { return "patient.address_updated" }

func (Added) EventName() string          { return EventName }
func (Updated) EventName() string        { return EventName }
func (AddressUpdated) EventName() string { return EventName }

func (Added) isPatientEvent()          {}
func (Updated) isPatientEvent()        {}
func (AddressUpdated) isPatientEvent() {}

func Registry() *es.EventRegistry {
	return es.NewRegistry(
		es.EventOf[Added](),
		es.EventOf[Updated](),
		es.EventOf[AddressUpdated](),
	)
}
