package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
	"github.com/nerrad567/fancontrol-core/internal/infrastructure/mqtt"
)

// Publisher is the subset of the MQTT client used by MQTTRecorder.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Ensure the MQTT client satisfies Publisher.
var _ Publisher = (*mqtt.Client)(nil)

// Control modes carried in control messages.
const (
	ModeManual = "manual"
	ModeAuto   = "auto"
)

// ReadingMessage is the payload published on <prefix>/state/<kind>/<entry>.
type ReadingMessage struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Kind      hardware.Kind `json:"kind"`
	Index     int           `json:"index"`
	Value     int32         `json:"value"`
	Timestamp time.Time     `json:"timestamp"`
}

// ControlMessage is the payload published on <prefix>/control/<entry>.
type ControlMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Index     int       `json:"index"`
	Mode      string    `json:"mode"`
	Value     *int32    `json:"value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MQTTRecorder mirrors command-loop events onto MQTT topics.
type MQTTRecorder struct {
	pub    Publisher
	topics mqtt.Topics
	qos    byte
	logger Logger

	now func() time.Time
}

var _ Recorder = (*MQTTRecorder)(nil)

// NewMQTT creates a recorder publishing through pub.
func NewMQTT(pub Publisher, topics mqtt.Topics, qos byte, logger Logger) *MQTTRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTRecorder{
		pub:    pub,
		topics: topics,
		qos:    qos,
		logger: logger,
		now:    time.Now,
	}
}

// PublishSnapshot publishes the identity snapshot as a retained message so
// late subscribers learn the hardware layout.
func (r *MQTTRecorder) PublishSnapshot(entries []hardware.EntryInfo) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding hardware snapshot: %w", err)
	}
	return r.pub.Publish(r.topics.Hardware(), payload, r.qos, true)
}

func (r *MQTTRecorder) RecordReading(_ context.Context, entry hardware.EntryInfo, value int32) {
	r.publish(r.topics.State(string(entry.Kind), entry.ID), ReadingMessage{
		ID:        entry.ID,
		Name:      entry.Name,
		Kind:      entry.Kind,
		Index:     entry.Index,
		Value:     value,
		Timestamp: r.now().UTC(),
	})
}

func (r *MQTTRecorder) RecordControl(_ context.Context, entry hardware.EntryInfo, value int32) {
	r.publish(r.topics.Control(entry.ID), ControlMessage{
		ID:        entry.ID,
		Name:      entry.Name,
		Index:     entry.Index,
		Mode:      ModeManual,
		Value:     &value,
		Timestamp: r.now().UTC(),
	})
}

func (r *MQTTRecorder) RecordAuto(_ context.Context, entry hardware.EntryInfo) {
	r.publish(r.topics.Control(entry.ID), ControlMessage{
		ID:        entry.ID,
		Name:      entry.Name,
		Index:     entry.Index,
		Mode:      ModeAuto,
		Timestamp: r.now().UTC(),
	})
}

func (r *MQTTRecorder) publish(topic string, msg any) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("encoding telemetry message", "topic", topic, "error", err)
		return
	}
	if err := r.pub.Publish(topic, payload, r.qos, false); err != nil {
		r.logger.Warn("publishing telemetry", "topic", topic, "error", err)
	}
}
