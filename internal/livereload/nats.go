package livereload

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitegen/internal/build"
	ferrors "git.home.luguber.info/inful/sitegen/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
)

const (
	transportNATS = "nats"

	// DefaultNATSSubject is used when no subject is configured.
	DefaultNATSSubject = "sitegen.reload"
)

// ReloadEvent is published to NATS after each completed pass.
type ReloadEvent struct {
	Cmd           string    `json:"cmd"`
	PassID        string    `json:"pass_id"`
	Status        string    `json:"status"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	Revision      string    `json:"revision,omitempty"`
	PagesRendered int       `json:"pages_rendered"`
	Timestamp     time.Time `json:"timestamp"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes reload events so other processes can follow passes.
type NATSNotifier struct {
	pub      publisher
	conn     *nats.Conn
	subject  string
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewNATSNotifier connects to url and publishes on subject.
func NewNATSNotifier(url, subject string, recorder metrics.Recorder, logger *slog.Logger) (*NATSNotifier, error) {
	if url == "" {
		return nil, ferrors.ConfigError("NATS URL is required").Build()
	}
	conn, err := nats.Connect(url,
		nats.Name("sitegen"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to connect to NATS").
			WithContext("url", url).
			Build()
	}
	n := newNATSNotifier(conn, subject, recorder, logger)
	n.conn = conn
	n.logger.Info("NATS reload publisher connected", logfields.URL(url), slog.String("subject", n.subject))
	return n, nil
}

func newNATSNotifier(pub publisher, subject string, recorder metrics.Recorder, logger *slog.Logger) *NATSNotifier {
	if subject == "" {
		subject = DefaultNATSSubject
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{pub: pub, subject: subject, recorder: recorder, logger: logger}
}

// Notify publishes a ReloadEvent for result.
func (n *NATSNotifier) Notify(_ context.Context, result *build.PassResult) error {
	if result == nil {
		return nil
	}
	evt := ReloadEvent{
		Cmd:           CmdReload,
		PassID:        result.ID,
		Status:        string(result.Status),
		Fingerprint:   result.Fingerprint,
		Revision:      result.Revision,
		PagesRendered: result.PagesRendered,
		Timestamp:     time.Now().UTC(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "encode reload event").Build()
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "failed to publish reload event").
			WithContext("subject", n.subject).
			Build()
	}
	n.recorder.IncReloadBroadcast(transportNATS)
	n.logger.Debug("Published reload event", logfields.PassID(result.ID), slog.String("subject", n.subject))
	return nil
}

// Close drains and closes the connection.
func (n *NATSNotifier) Close() {
	if n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
