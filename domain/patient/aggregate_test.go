package patient

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/esk/core/es"
)

var (
	home = Address{Street: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"}
	work = Address{Street: "9 Side Rd", City: "Shelbyville", State: "IL", Zip: "62565"}
)

func added(id uuid.UUID) Added {
	return Added{ID: id, Name: "Ada", Address: home, Age: 36, Phone: "555-0100", Email: "ada@example.com"}
}

func TestAggregate_Apply(t *testing.T) {
	agg := Aggregate{}
	id := uuid.New()

	t.Run("added creates the patient", func(t *testing.T) {
		p, ok := agg.Apply(agg.Init(), added(id)).Get()
		require.True(t, ok)
		require.Equal(t, Patient{ID: id, Name: "Ada", Address: home, Age: 36, Phone: "555-0100", Email: "ada@example.com"}, p)
	})

	t.Run("updates keep the other fields", func(t *testing.T) {
		s := es.FoldData(agg, agg.Init(), []Event{
			added(id),
			Updated{Name: "Ada L", Age: 37, Phone: "555-0199", Email: "ada@l.org"},
			AddressUpdated{Address: work},
		})
		p, ok := s.Get()
		require.True(t, ok)
		require.Equal(t, Patient{ID: id, Name: "Ada L", Address: work, Age: 37, Phone: "555-0199", Email: "ada@l.org"}, p)
	})

	t.Run("updates on an absent patient stay absent", func(t *testing.T) {
		require.Equal(t, agg.Init(), agg.Apply(agg.Init(), Updated{Name: "x"}))
		require.Equal(t, agg.Init(), agg.Apply(agg.Init(), AddressUpdated{Address: work}))
	})
}

func TestAggregate_Execute(t *testing.T) {
	agg := Aggregate{}
	id := uuid.New()
	existing := agg.Apply(agg.Init(), added(id))

	t.Run("add uses the command id", func(t *testing.T) {
		events, err := agg.Execute(agg.Init(), AddPatient{ID: id, Name: "Ada", Address: home, Age: 36, Phone: "555-0100", Email: "ada@example.com"})
		require.NoError(t, err)
		require.Equal(t, []Event{added(id)}, events)
	})

	cases := []struct {
		name   string
		state  State
		cmd    Command
		reason string
	}{
		{"update absent", agg.Init(), UpdatePatient{ID: id, Name: "B"}, "patient not found"},
		{"address absent", agg.Init(), UpdatePatientAddress{ID: id, Address: work}, "patient not found"},
		{"update no-op", existing, UpdatePatient{ID: id, Name: "Ada", Age: 36, Phone: "555-0100", Email: "ada@example.com"}, "patient not updated"},
		{"address no-op", existing, UpdatePatientAddress{ID: id, Address: home}, "patient address not updated"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			events, err := agg.Execute(c.state, c.cmd)
			require.ErrorIs(t, err, es.ErrValidation)
			require.Nil(t, events)

			var verr *es.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, c.reason, verr.Reason)
		})
	}

	t.Run("one changed field is enough", func(t *testing.T) {
		events, err := agg.Execute(existing, UpdatePatient{ID: id, Name: "Ada", Age: 37, Phone: "555-0100", Email: "ada@example.com"})
		require.NoError(t, err)
		require.Equal(t, []Event{Updated{Name: "Ada", Age: 37, Phone: "555-0100", Email: "ada@example.com"}}, events)
	})
}

func TestAggregate_foldProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	agg := Aggregate{}
	id := uuid.New()

	genEvents := gen.SliceOf(gen.IntRange(0, 299)).Map(func(xs []int) []Event {
		out := make([]Event, 0, len(xs))
		for _, x := range xs {
			switch x % 3 {
			case 0:
				out = append(out, Added{ID: id, Name: fmt.Sprint("n", x)})
			case 1:
				out = append(out, Updated{Name: "n", Age: int32(x)})
			default:
				out = append(out, AddressUpdated{Address: Address{Zip: fmt.Sprint(x)}})
			}
		}
		return out
	})

	properties.Property("fold is deterministic", prop.ForAll(
		func(events []Event) bool {
			return es.FoldData(agg, agg.Init(), events) == es.FoldData(agg, agg.Init(), events)
		},
		genEvents,
	))

	properties.Property("updates before any add leave the patient absent", prop.ForAll(
		func(events []Event) bool {
			var updates []Event
			for _, ev := range events {
				if _, ok := ev.(Added); !ok {
					updates = append(updates, ev)
				}
			}
			return es.FoldData(agg, agg.Init(), updates).IsNone()
		},
		genEvents,
	))

	properties.TestingRun(t)
}
