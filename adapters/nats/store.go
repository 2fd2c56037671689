package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/esk/core/es"
)

const (
	defaultSubjectPrefix = "esk.es"
	defaultStreamName    = "ESK_EVENTS"

	headerStream       = "x-stream-id"
	headerFirstVersion = "x-first-version"
	headerLastVersion  = "x-last-version"
)

type EventStoreConfig struct {
	Connect       Connector    // Connect is used to create the underlying NATS connection. Defaults to the local server.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix is the prefix of every stream subject
	StreamName    string
	Replicas      int

	// Limits are optional; zero means unlimited. An event log normally keeps
	// everything.
	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64
}

// EventStore keeps each event stream on its own subject of one JetStream
// stream. Every append is published as a single message holding the whole
// batch, guarded by the expected last sequence of the subject, so an append
// is atomic and exactly one writer wins per head.
type EventStore struct {
	nc            *natsgo.Conn
	close         Release
	js            jetstream.JetStream
	stream        jetstream.Stream
	log           *slog.Logger
	subjectPrefix string
	streamName    string
}

func NewEventStore(cfg EventStoreConfig) (*EventStore, error) {
	nc, closeConn, err := orDefault(cfg.Connect)()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeConn()
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	streamName := strings.ToUpper(cfg.StreamName)
	if streamName == "" {
		streamName = defaultStreamName
	}

	subjectPrefix := cfg.SubjectPrefix
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}

	// 0 means unlimited in NATS for age, -1 for bytes and msgs
	maxBytes := cfg.MaxBytes
	if maxBytes == 0 {
		maxBytes = -1
	}
	maxMsgs := cfg.MaxMsgs
	if maxMsgs == 0 {
		maxMsgs = -1
	}

	log = log.With(
		slog.String("store", "nats_js"),
		slog.String("js_stream", streamName),
		slog.String("subject_prefix", subjectPrefix),
	)

	log.Debug("ensuring stream")

	stream, streamInfo, err := ensureStream(js, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{subjectPrefix + ".>"},
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Replicas:   cfg.Replicas,
		MaxAge:     cfg.MaxAge,
		MaxBytes:   maxBytes,
		MaxMsgs:    maxMsgs,
		DenyDelete: true,
		DenyPurge:  true,
		FirstSeq:   1,
	})
	if err != nil {
		closeConn()
		return nil, err
	}

	log.Debug("ensured", slog.Uint64("messages", streamInfo.State.Msgs))

	return &EventStore{
		nc:            nc,
		close:         closeConn,
		js:            js,
		log:           log,
		stream:        stream,
		subjectPrefix: subjectPrefix,
		streamName:    streamName,
	}, nil
}

func (e *EventStore) Close() error {
	e.js.CleanupPublisher()
	e.close()
	e.log.Debug("closed event store")
	return nil
}

// ValidateStreamID rejects ids that are not a single NATS subject token.
func ValidateStreamID(stream es.StreamID) error {
	if stream == "" {
		return errors.New("stream id is empty")
	}
	if strings.ContainsAny(string(stream), ".*> \t\r\n") {
		return fmt.Errorf("stream id %q must not contain '.', '*', '>' or whitespace", stream)
	}
	return nil
}

func (e *EventStore) subject(stream es.StreamID) string {
	return e.subjectPrefix + "." + string(stream)
}

type head struct {
	version es.Version
	seq     uint64 // stream sequence of the last message on the subject, 0 if none
}

func (e *EventStore) head(ctx context.Context, stream es.StreamID) (head, error) {
	lm, err := e.stream.GetLastMsgForSubject(ctx, e.subject(stream))
	if errors.Is(err, jetstream.ErrMsgNotFound) {
		return head{}, nil
	}
	if err != nil {
		return head{}, err
	}
	v, err := strconv.ParseUint(lm.Header.Get(headerLastVersion), 10, 64)
	if err != nil {
		return head{}, es.Corrupt(stream, "message %d has no version header", lm.Sequence)
	}
	return head{version: es.Version(v), seq: lm.Sequence}, nil
}

// Append publishes envs under expected. With ExpectAny a lost race on the
// subject sequence is retried against the new head instead of surfacing as a
// conflict.
func (e *EventStore) Append(
	ctx context.Context,
	stream es.StreamID,
	expected es.ExpectedVersion,
	envs []es.Envelope,
) ([]es.Envelope, error) {
	if len(envs) == 0 {
		return nil, es.ErrStoreNoEvents
	}
	if err := ValidateStreamID(stream); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		out, err := e.publish(ctx, stream, expected, envs)
		if !expected.IsAny() || !errors.Is(err, es.ErrConcurrencyConflict) {
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.log.Debug("append raced, retrying", stream.SlogAttr(), slog.Int("attempt", attempt))
	}
}

func (e *EventStore) publish(
	ctx context.Context,
	stream es.StreamID,
	expected es.ExpectedVersion,
	envs []es.Envelope,
) ([]es.Envelope, error) {
	cur, err := e.head(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to get head: %w", err)
	}
	if err := expected.Check(stream, cur.version); err != nil {
		return nil, err
	}

	batch := make([]es.Envelope, len(envs))
	for i, env := range envs {
		env.StreamID = stream
		env.Version = cur.version + es.Version(i+1)
		if err := env.Validate(); err != nil {
			return nil, fmt.Errorf("failed to validate event: %w", err)
		}
		batch[i] = env
	}

	subject := e.subject(stream)
	msg := natsgo.NewMsg(subject)
	msg.Header.Set(headerStream, string(stream))
	msg.Header.Set(headerFirstVersion, strconv.FormatUint(uint64(batch[0].Version), 10))
	msg.Header.Set(headerLastVersion, strconv.FormatUint(uint64(batch[len(batch)-1].Version), 10))
	if msg.Data, err = json.Marshal(batch); err != nil {
		return nil, err
	}

	ack, err := e.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(batch[0].ID),
		jetstream.WithExpectLastSequencePerSubject(cur.seq),
	)
	if isWrongLastSequence(err) {
		actual, herr := e.head(ctx, stream)
		if herr != nil {
			actual = cur
		}
		return nil, &es.ConflictError{StreamID: stream, Expected: expected, Actual: actual.version}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	if ack.Duplicate {
		return nil, fmt.Errorf("append to %s was deduplicated as message %d", stream, ack.Sequence)
	}

	for i := range batch {
		batch[i].Seq = ack.Sequence
	}

	e.log.Debug(
		"append",
		stream.SlogAttr(),
		slog.Uint64("seq", ack.Sequence),
		slog.Int("num_events", len(batch)),
	)
	return batch, nil
}

func (e *EventStore) Read(ctx context.Context, stream es.StreamID, rng es.ReadRange) (out []es.Envelope, err error) {
	if err := ValidateStreamID(stream); err != nil {
		return nil, err
	}

	startAt := time.Now()
	defer func() {
		if err == nil {
			e.log.Debug(
				"read",
				stream.SlogAttr(),
				slog.String("range", rng.String()),
				slog.Int("count", len(out)),
				slog.Duration("duration", time.Since(startAt)),
			)
		}
	}()

	cur, err := e.head(ctx, stream)
	if err != nil {
		return nil, err
	}
	out = []es.Envelope{}
	if cur.seq == 0 || cur.version < rng.From() {
		return out, nil
	}

	cc, err := e.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		FilterSubjects: []string{e.subject(stream)},
	})
	if err != nil {
		return nil, err
	}
	return e.consume(ctx, cc, stream, rng, cur.seq)
}

func (e *EventStore) consume(
	ctx context.Context,
	cc jetstream.Consumer,
	stream es.StreamID,
	rng es.ReadRange,
	endSeq uint64,
) ([]es.Envelope, error) {
	out := []es.Envelope{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mb, err := cc.FetchNoWait(100)
		if err != nil {
			return nil, err
		}

		empty := true
		for msg := range mb.Messages() {
			empty = false
			md, err := msg.Metadata()
			if err != nil {
				return nil, err
			}

			last, err := strconv.ParseUint(msg.Headers().Get(headerLastVersion), 10, 64)
			if err != nil {
				return nil, es.Corrupt(stream, "message %d has no version header", md.Sequence.Stream)
			}
			if es.Version(last) >= rng.From() {
				var batch []es.Envelope
				if err := json.Unmarshal(msg.Data(), &batch); err != nil {
					return nil, es.Corrupt(stream, "message %d: %v", md.Sequence.Stream, err)
				}
				for _, env := range batch {
					if rng.Includes(env.Version) {
						env.Seq = md.Sequence.Stream
						out = append(out, env)
					}
				}
			}

			if md.Sequence.Stream >= endSeq {
				return out, nil
			}
		}
		if mb.Error() != nil {
			return nil, mb.Error()
		}
		if empty {
			return out, nil
		}
	}
}

func ensureStream(js jetstream.JetStream, cfg jetstream.StreamConfig) (s jetstream.Stream, si *jetstream.StreamInfo, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*natsgo.DefaultTimeout)
	defer cancel()

	s, err = js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	si, err = s.Info(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, si, nil
}

func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}

var _ es.EnvelopeStore = (*EventStore)(nil)
