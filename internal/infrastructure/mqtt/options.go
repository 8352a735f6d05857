package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fancontrol-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho expects.
	defaultDisconnectQuiesce = 1000

	defaultKeepAlive = 60 * time.Second

	maxQoS = 2

	// statusQoS is used for the LWT and status announcements.
	statusQoS = 1
)

// Status values published on <prefix>/system/status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Offline reasons.
const (
	ReasonGraceful   = "graceful_shutdown"
	ReasonUnexpected = "unexpected_disconnect"
)

// StatusMessage is the retained payload on <prefix>/system/status. The
// broker delivers the unexpected variant as the LWT when the daemon dies
// without Close.
type StatusMessage struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	PID       int       `json:"pid"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// statusPayload encodes a status message for clientID.
func statusPayload(clientID, status, reason string) []byte {
	payload, err := json.Marshal(StatusMessage{
		Status:    status,
		ClientID:  clientID,
		PID:       os.Getpid(),
		Reason:    reason,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		// Only strings, ints and a time: cannot fail.
		return []byte(`{"status":"` + status + `"}`)
	}
	return payload
}

// buildClientOptions maps the mqtt config section onto paho options.
//
// The daemon never subscribes, so the session is always clean. Reconnects
// back off from reconnect.initial_delay up to reconnect.max_delay.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// configureLWT registers the unexpected-offline status as the will message.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	will := statusPayload(clientID, StatusOffline, ReasonUnexpected)
	opts.SetBinaryWill(topics.SystemStatus(), will, statusQoS, true)
}
