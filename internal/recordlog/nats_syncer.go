package recordlog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsSubject is the JetStream subject the log publishes envelopes to.
// Stream/subject naming follows the teacher's own "<prefix>.<event>"
// convention used for its decision-event bus.
const natsSubject = "histd.records"

// NATSSyncer exchanges envelopes with a remote NATS JetStream stream,
// standing in for the original "atuin cloud server" the original Rust
// source synced against. Each host dials its own NATSSyncer with its own
// durable consumer name; JetStream's durable consumer cursor is what lets
// Pull resume from where this host last left off.
type NATSSyncer struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	sub  *nats.Subscription
}

// DialNATSSyncer connects to url and ensures the records stream exists.
func DialNATSSyncer(url string, durableName string) (*NATSSyncer, error) {
	nc, err := nats.Connect(url,
		nats.Name("histd-sync"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("recordlog: nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("recordlog: jetstream context: %w", err)
	}

	if _, err := js.AddStream(&nats.StreamConfig{
		Name:     "HISTD_RECORDS",
		Subjects: []string{natsSubject},
	}); err != nil && err != nats.ErrStreamNameAlreadyInUse {
		nc.Close()
		return nil, fmt.Errorf("recordlog: ensure stream: %w", err)
	}

	sub, err := js.PullSubscribe(natsSubject, durableName,
		nats.DeliverAll(),
		nats.AckExplicit(),
	)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("recordlog: jetstream pull subscribe: %w", err)
	}

	return &NATSSyncer{conn: nc, js: js, sub: sub}, nil
}

func (s *NATSSyncer) Close() error {
	_ = s.sub.Unsubscribe()
	s.conn.Close()
	return nil
}

type wireEnvelope struct {
	ID      string `json:"id"`
	Host    string `json:"host"`
	Index   uint64 `json:"index"`
	Content []byte `json:"content"`
}

// Publish implements Syncer.
func (s *NATSSyncer) Publish(ctx context.Context, env Envelope) error {
	b, err := json.Marshal(wireEnvelope{
		ID:      env.ID.String(),
		Host:    env.Host.String(),
		Index:   env.Index,
		Content: env.Content,
	})
	if err != nil {
		return fmt.Errorf("recordlog: marshal envelope: %w", err)
	}
	if _, err := s.js.Publish(natsSubject, b, nats.Context(ctx)); err != nil {
		return fmt.Errorf("recordlog: publish envelope %s: %w", env.ID, err)
	}
	return nil
}

// Pull implements Syncer, draining any messages queued on this syncer's
// durable consumer. afterIndex is unused here — ordering and resumption are
// delegated entirely to the JetStream durable cursor (nats.DeliverAll plus
// explicit ack), which is the pattern the teacher's own decision-event
// watcher relies on.
func (s *NATSSyncer) Pull(ctx context.Context, afterIndex uint64) ([]Envelope, error) {
	var out []Envelope
	for {
		msgs, err := s.sub.Fetch(64, nats.Context(ctx))
		if err == nats.ErrTimeout || len(msgs) == 0 {
			break
		}
		if err != nil {
			return out, fmt.Errorf("recordlog: fetch: %w", err)
		}

		for _, msg := range msgs {
			var w wireEnvelope
			if err := json.Unmarshal(msg.Data, &w); err != nil {
				_ = msg.Nak()
				continue
			}
			id, err := ParseRecordID(w.ID)
			if err != nil {
				_ = msg.Nak()
				continue
			}
			host, err := ParseHostID(w.Host)
			if err != nil {
				_ = msg.Nak()
				continue
			}
			out = append(out, Envelope{ID: id, Host: host, Index: w.Index, Content: w.Content})
			_ = msg.Ack()
		}

		if len(msgs) < 64 {
			break
		}
	}
	return out, nil
}

var _ Syncer = (*NATSSyncer)(nil)
