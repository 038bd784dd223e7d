package bus

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/brandguard/brandguard/core/infra/logging"
	"github.com/nats-io/nats.go"
)

const (
	envUseJetStream = "NATS_USE_JETSTREAM"
	envJSMaxAge     = "NATS_JS_MAX_AGE"

	defaultMaxAge = 7 * 24 * time.Hour
	streamEvents  = "BRANDGUARD_EVENTS"
)

var (
	errNilPublisher = errors.New("nats publisher not initialized")
	errEmptySubject = errors.New("empty subject")
)

// NatsPublisher publishes JSON events over core NATS, or JetStream when
// NATS_USE_JETSTREAM is enabled (event ids double as dedupe msg ids).
type NatsPublisher struct {
	nc   *nats.Conn
	send func(subject string, data []byte, msgID string) error
	now  func() time.Time
}

// NewNatsPublisher dials NATS at the provided URL.
func NewNatsPublisher(url string) (*NatsPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("brandguard-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.Warn("bus", "disconnected from nats", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("bus", "reconnected to nats", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}
	p := &NatsPublisher{nc: nc, now: time.Now}
	p.send = func(subject string, data []byte, _ string) error {
		return nc.Publish(subject, data)
	}
	if jetStreamEnabled() {
		p.useJetStream()
	}
	return p, nil
}

// Publish wraps data in an Event envelope and sends it on subject.
func (p *NatsPublisher) Publish(subject string, data any) error {
	if p == nil || p.send == nil {
		return errNilPublisher
	}
	if strings.TrimSpace(subject) == "" {
		return errEmptySubject
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	event, err := newEvent(subject, data, now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.send(subject, payload, event.ID)
}

// Close drains nothing and closes the connection.
func (p *NatsPublisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}

func (p *NatsPublisher) useJetStream() {
	js, err := p.nc.JetStream()
	if err != nil {
		logging.Error("bus", "jetstream init failed", "err", err)
		return
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:       streamEvents,
		Subjects:   []string{subjectWildcard},
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		MaxAge:     maxAgeFromEnv(),
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		// An existing stream is fine.
		if _, infoErr := js.StreamInfo(streamEvents); infoErr != nil {
			logging.Error("bus", "jetstream stream unavailable, using core nats", "err", err)
			return
		}
	}
	p.send = func(subject string, data []byte, msgID string) error {
		_, err := js.Publish(subject, data, nats.MsgId(msgID))
		return err
	}
	logging.Info("bus", "jetstream enabled", "stream", streamEvents)
}

func jetStreamEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envUseJetStream))) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func maxAgeFromEnv() time.Duration {
	if v := strings.TrimSpace(os.Getenv(envJSMaxAge)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultMaxAge
}
