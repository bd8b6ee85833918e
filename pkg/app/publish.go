package app

import (
	"encoding/json"
	"path"
	"time"

	"github.com/womat/debug"

	"dqlog/pkg/mqtt"
	"dqlog/pkg/session"
)

// message is the mqtt payload of a sample.
type message struct {
	SerialNumber string    `json:"serialNumber"`
	Time         time.Time `json:"time"`
	Pressure     string    `json:"pressure"`
}

// publish sends the sample to the mqtt broker if the interval since the last
// message of the device has passed. Messages are dropped rather than delaying the sampling loop.
func (app *App) publish(s session.Sample) {
	if !app.mqtt.Enabled() {
		return
	}

	app.mu.Lock()
	last := app.published[s.SerialNumber]
	if s.Time.Sub(last) < app.config.MQTT.Interval {
		app.mu.Unlock()
		return
	}
	app.published[s.SerialNumber] = s.Time
	app.mu.Unlock()

	b, err := json.Marshal(message{SerialNumber: s.SerialNumber, Time: s.Time.UTC(), Pressure: s.Payload})
	if err != nil {
		debug.ErrorLog.Printf("publish marshal: %v", err)
		return
	}

	if !app.mqtt.Publish(mqtt.Message{
		Qos:      0,
		Retained: true,
		Topic:    path.Join(app.config.MQTT.Topic, s.SerialNumber),
		Payload:  b,
	}) {
		debug.DebugLog.Printf("mqtt queue full, dropped sample of %s", s.SerialNumber)
	}
}
