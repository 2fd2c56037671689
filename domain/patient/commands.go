package patient

import (
	"github.com/google/uuid"

	"github.com/codewandler/esk/core/es"
)

type (
	Command interface {
		es.Routed
		isPatientCommand()
	}

	AddPatient struct {
		ID      uuid.UUID
		Name    string
		Address Address
		Age     int32
		Phone   string
		Email   string
	}

	// UpdatePatient replaces the contact fields. Version is the version the
	// caller last saw.
	UpdatePatient struct {
		ID      uuid.UUID
		Version es.Version
		Name    string
		Age     int32
		Phone   string
		Email   string
	}

	UpdatePatientAddress struct {
		ID      uuid.UUID
		Version es.Version
		Address Address
	}
)

func (c AddPatient) StreamID() es.StreamID               { return StreamFor(c.ID) }
func (c AddPatient) ExpectedVersion() es.ExpectedVersion { return es.ExpectNoStream() }

func (c UpdatePatient) StreamID() es.StreamID               { return StreamFor(c.ID) }
func (c UpdatePatient) ExpectedVersion() es.ExpectedVersion { return es.ExpectExact(c.Version) }

func (c UpdatePatientAddress) StreamID() es.StreamID               { return StreamFor(c.ID) }
func (c UpdatePatientAddress) ExpectedVersion() es.ExpectedVersion { return es.ExpectExact(c.Version) }

func (AddPatient) isPatientCommand()           {}
func (UpdatePatient) isPatientCommand()        {}
func (UpdatePatientAddress) isPatientCommand() {}
