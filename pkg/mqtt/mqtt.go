// Package mqtt publishes messages to an mqtt broker, best effort.
package mqtt

import (
	"sync"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/womat/debug"
)

const (
	// quiesce is the specified number of milliseconds to wait for existing work to be completed.
	quiesce = 250
	// queueSize is the number of messages waiting for the broker before new ones are dropped.
	queueSize = 64
)

// Handler contains the handler of the mqtt broker.
type Handler struct {
	handler mqttlib.Client
	// C is the channel to service the mqtt message
	// sending a message to channel C will send the message.
	C chan Message

	mu sync.Mutex
	// dropped counts the messages discarded because C was full.
	dropped uint64
	closed  bool
}

// Message contains the properties of the mqtt message.
type Message struct {
	Topic    string
	Payload  []byte
	Qos      byte
	Retained bool
}

// New generate a new mqtt broker client.
func New() *Handler {
	return &Handler{
		C: make(chan Message, queueSize),
	}
}

// Connect connects to the mqtt broker.
// If no broker is defined, no mqtt message are send.
func (m *Handler) Connect(broker, clientID string) error {
	if broker == "" {
		return nil
	}

	opts := mqttlib.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)
	m.handler = mqttlib.NewClient(opts)
	return m.ReConnect()
}

// ReConnect reconnects to the defined mqtt broker.
func (m *Handler) ReConnect() error {
	t := m.handler.Connect()
	<-t.Done()
	return t.Error()
}

// Enabled reports whether a broker is connected.
func (m *Handler) Enabled() bool {
	return m.handler != nil
}

// Publish queues msg without blocking, the message is dropped if the queue is full
// or the handler is disconnected.
func (m *Handler) Publish(msg Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	select {
	case m.C <- msg:
		return true
	default:
		m.dropped++
		return false
	}
}

// Dropped returns the number of messages discarded by Publish.
func (m *Handler) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Disconnect stops the service and ends the connection to the broker.
func (m *Handler) Disconnect() error {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.C)
	}
	m.mu.Unlock()

	if m.handler == nil {
		return nil
	}

	m.handler.Disconnect(quiesce)
	return nil
}

// Service listen to a message on the channel C and send the message to mqtt.
// If no handler or topic is defined, the message will be ignored.
// Service returns after Disconnect.
func (m *Handler) Service() {
	for d := range m.C {
		if m.handler == nil || d.Topic == "" {
			continue
		}

		if !m.handler.IsConnected() {
			debug.DebugLog.Printf("mqtt broker isn't connected, reconnect it")

			if err := m.ReConnect(); err != nil {
				debug.ErrorLog.Printf("can't reconnect to mqtt broker %v", err)
				continue
			}
		}

		debug.TraceLog.Printf("publishing %v bytes to topic %v", len(d.Payload), d.Topic)
		t := m.handler.Publish(d.Topic, d.Qos, d.Retained, d.Payload)

		// the asynchronous nature of this library makes it easy to forget to check for errors.
		go func(topic string) {
			<-t.Done()
			if err := t.Error(); err != nil {
				debug.ErrorLog.Printf("publishing topic %v: %v", topic, err)
			}
		}(d.Topic)
	}
}
