// Command patients drives the patient service against the configured stores.
//
//	patients add -name Ada -age 36 -city Springfield
//	patients update -id <uuid> -version 1 -name "Ada L" -age 37
//	patients get -id <uuid>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/codewandler/esk/core/es"
	"github.com/codewandler/esk/domain/patient"
	"github.com/codewandler/esk/internal/bootstrap"
	"github.com/codewandler/esk/internal/codec"
	"github.com/codewandler/esk/internal/config"
)

const usage = `usage: patients <command> [flags]

commands:
  add             register a patient
  update          change name, age, phone and email
  update-address  change the address
  get             show a patient from the read model
  list            list read-model versions of all patients
  sync            bring the read model of a patient up to date
  replay          fold a patient straight from the event log

configuration is read from ESK_* environment variables`

func main() {
	if len(os.Args) < 2 {
		config.Exitf(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		config.Exitf("config: %v", err)
	}
	log := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Open(ctx, cfg, log, nil)
	if err != nil {
		config.Exitf("open: %v", err)
	}
	defer func() { _ = rt.Close() }()

	svc, err := rt.PatientService()
	if err != nil {
		config.Exitf("service: %v", err)
	}
	defer svc.Close()

	out, err := run(ctx, svc, os.Args[1], os.Args[2:])
	if err != nil {
		_ = rt.Close()
		config.Exitf("%s: %v", os.Args[1], err)
	}
	if out != nil {
		b, err := codec.Indented{}.Marshal(out)
		if err != nil {
			config.Exitf("encode: %v", err)
		}
		fmt.Println(string(b))
	}
}

func run(ctx context.Context, svc *patient.Service, cmd string, args []string) (any, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	var (
		id      = fs.String("id", "", "patient id")
		version = fs.Uint64("version", 0, "version the command was decided against")
		actor   = fs.String("actor", os.Getenv("USER"), "recorded in event metadata")
		fields  patientFlags
		addr    addressFlags
	)

	switch cmd {
	case "add":
		fields.register(fs)
		addr.register(fs)
	case "update":
		fields.register(fs)
	case "update-address":
		addr.register(fs)
	case "get", "sync", "replay", "list":
	default:
		return nil, fmt.Errorf("unknown command\n\n%s", usage)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts := []es.HandleOption{es.WithMetadata(patient.Meta{Actor: *actor})}

	switch cmd {
	case "add":
		pid, err := optionalID(*id)
		if err != nil {
			return nil, err
		}
		return svc.AddPatient(ctx, patient.AddPatient{
			ID:      pid,
			Name:    fields.name,
			Address: addr.Address,
			Age:     int32(fields.age),
			Phone:   fields.phone,
			Email:   fields.email,
		}, opts...)

	case "list":
		return svc.ListMeta(ctx)
	}

	pid, err := uuid.Parse(*id)
	if err != nil {
		return nil, fmt.Errorf("-id: %w", err)
	}

	switch cmd {
	case "update":
		return svc.UpdatePatient(ctx, patient.UpdatePatient{
			ID:      pid,
			Version: es.Version(*version),
			Name:    fields.name,
			Age:     int32(fields.age),
			Phone:   fields.phone,
			Email:   fields.email,
		}, opts...)
	case "update-address":
		return svc.UpdatePatientAddress(ctx, patient.UpdatePatientAddress{
			ID:      pid,
			Version: es.Version(*version),
			Address: addr.Address,
		}, opts...)
	case "get":
		got, err := svc.Get(ctx, pid)
		if err != nil {
			return nil, err
		}
		if got.IsNone() {
			return nil, fmt.Errorf("patient %s: %w", pid, es.ErrEntityNotFound)
		}
		return got, nil
	case "sync":
		if err := svc.Sync(ctx, pid); err != nil {
			return nil, err
		}
		return svc.Meta(ctx, pid)
	default: // replay
		state, head, err := svc.Replay(ctx, pid)
		if err != nil {
			return nil, err
		}
		return struct {
			Version es.Version    `json:"version"`
			State   patient.State `json:"state"`
		}{head, state}, nil
	}
}

func optionalID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("-id: %w", err)
	}
	return id, nil
}

type patientFlags struct {
	name, phone, email string
	age                int
}

func (p *patientFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.name, "name", "", "full name")
	fs.IntVar(&p.age, "age", 0, "age in years")
	fs.StringVar(&p.phone, "phone", "", "phone number")
	fs.StringVar(&p.email, "email", "", "email address")
}

type addressFlags struct{ patient.Address }

func (a *addressFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&a.Street, "street", "", "street")
	fs.StringVar(&a.City, "city", "", "city")
	fs.StringVar(&a.State, "state", "", "state")
	fs.StringVar(&a.Zip, "zip", "", "zip code")
}
