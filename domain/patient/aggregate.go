package patient

import (
	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/core/es/assert"
)

type Aggregate struct{}

func (Aggregate) Init() State { return es.None[Patient]() }

// Apply ignores updates to a patient that was never added.
func (Aggregate) Apply(s State, ev Event) State {
	switch e := ev.(type) {
	case Added:
		return es.Some(Patient{
			ID:      e.ID,
			Name:    e.Name,
			Address: e.Address,
			Age:     e.Age,
			Phone:   e.Phone,
			Email:   e.Email,
		})
	case Updated:
		p, ok := s.Get()
		if !ok {
			return s
		}
		p.Name, p.Age, p.Phone, p.Email = e.Name, e.Age, e.Phone, e.Email
		return es.Some(p)
	case AddressUpdated:
		p, ok := s.Get()
		if !ok {
			return s
		}
		p.Address = e.Address
		return es.Some(p)
	}
	return s
}

func (Aggregate) Execute(s State, cmd Command) ([]Event, error) {
	p, exists := s.Get()
	switch cmd := cmd.(type) {
	case AddPatient:
		return []Event{Added{
			ID:      cmd.ID,
			Name:    cmd.Name,
			Address: cmd.Address,
			Age:     cmd.Age,
			Phone:   cmd.Phone,
			Email:   cmd.Email,
		}}, nil
	case UpdatePatient:
		if !exists {
			return nil, es.Reject("patient not found")
		}
		next := Updated{Name: cmd.Name, Age: cmd.Age, Phone: cmd.Phone, Email: cmd.Email}
		return es.Checked(
			assert.Changed(Updated{Name: p.Name, Age: p.Age, Phone: p.Phone, Email: p.Email}, next, "patient not updated"),
			func() ([]Event, error) { return []Event{next}, nil },
		)
	case UpdatePatientAddress:
		if !exists {
			return nil, es.Reject("patient not found")
		}
		return es.Checked(
			assert.Changed(p.Address, cmd.Address, "patient address not updated"),
			func() ([]Event, error) { return []Event{AddressUpdated{Address: cmd.Address}}, nil },
		)
	}
	return nil, es.Reject("unknown command %T", cmd)
}

var _ es.Aggregate[State, Command, Event] = Aggregate{}
