// Package telemetry publishes harness events to an MQTT broker.
//
// The notifier subscribes to the event bus and mirrors match, session and
// engine events onto a topic tree under the configured prefix, so ladder
// dashboards can follow games without talking to the harness directly.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gocraft2-project/gocraft2/internal/config"
	"github.com/gocraft2-project/gocraft2/internal/events"
	"github.com/gocraft2-project/gocraft2/internal/util"
)

// tickInterval caps how often match.tick is forwarded. An unthrottled game
// can finish a step round in under a millisecond.
const tickInterval = time.Second

// mqttClient is the slice of the paho client the notifier uses. Tests
// substitute a recording fake.
type mqttClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Notifier bridges the event bus onto MQTT. Every published message wraps
// the event payload in an envelope carrying the host identity and a
// timestamp, so a single broker can collect telemetry from several
// harnesses at once.
type Notifier struct {
	mu       sync.Mutex
	lastTick time.Time

	cfg      config.TelemetryConfig
	bus      *events.EventBus
	client   mqttClient
	metadata map[string]interface{}
	logger   zerolog.Logger
}

// NewNotifier builds the MQTT client from the telemetry section of the
// config. It does not connect; call Start for that.
func NewNotifier(cfg config.TelemetryConfig, bus *events.EventBus) (*Notifier, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("telemetry is disabled")
	}

	sysInfo := util.GetSystemInfo()

	n := &Notifier{
		cfg: cfg,
		bus: bus,
		metadata: map[string]interface{}{
			"hostname": sysInfo.Hostname,
			"platform": sysInfo.Platform,
		},
		logger: log.With().
			Str("component", "telemetry").
			Str("broker", cfg.BrokerHost).
			Logger(),
	}

	opts := mqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerHost, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("gocraft2-%s", sysInfo.Hostname))
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetCleanSession(false)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		n.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		n.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	n.client = mqtt.NewClient(opts)

	return n, nil
}

// Start connects to the broker and hooks the notifier onto the event bus.
func (n *Notifier) Start() error {
	n.logger.Info().
		Int("port", n.cfg.Port).
		Bool("tls", n.cfg.UseTLS).
		Msg("connecting to MQTT broker")

	token := n.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	n.subscribeEvents()
	return nil
}

// Stop announces shutdown and drops the broker connection. The quiesce
// window lets queued publishes flush before the socket closes.
func (n *Notifier) Stop() {
	n.publishShutdown()
	n.client.Disconnect(5000)
	n.logger.Info().Msg("MQTT disconnected")
}

func (n *Notifier) subscribeEvents() {
	for _, t := range []events.EventType{
		events.EventMatchCreated,
		events.EventMatchStarted,
		events.EventMatchEnded,
		events.EventSessionStateChanged,
		events.EventSessionAborted,
		events.EventEngineLaunched,
		events.EventEngineExited,
	} {
		n.bus.Subscribe(t, "mqtt."+string(t), n.onEvent)
	}
	n.bus.Subscribe(events.EventMatchTick, "mqtt."+string(events.EventMatchTick), n.onTick)
}

// onEvent forwards a lifecycle event at QoS 1.
func (n *Notifier) onEvent(ctx context.Context, event events.Event) error {
	n.publish(topicFor(n.cfg.TopicPrefix, event.Type), event, 1)
	return nil
}

// onTick samples step progress instead of forwarding every round, and
// sends what it keeps fire-and-forget.
func (n *Notifier) onTick(ctx context.Context, event events.Event) error {
	n.mu.Lock()
	if time.Since(n.lastTick) < tickInterval {
		n.mu.Unlock()
		return nil
	}
	n.lastTick = time.Now()
	n.mu.Unlock()

	n.publish(topicFor(n.cfg.TopicPrefix, event.Type), event, 0)
	return nil
}

// publish sends a JSON envelope to an MQTT topic. Delivery results are
// collected asynchronously so a slow broker never stalls the event bus.
func (n *Notifier) publish(topic string, event events.Event, qos byte) {
	if !n.client.IsConnected() {
		return
	}

	data, err := json.Marshal(n.buildMessage(event))
	if err != nil {
		n.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := n.client.Publish(topic, qos, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			n.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage wraps the event payload in the telemetry envelope.
func (n *Notifier) buildMessage(event events.Event) map[string]interface{} {
	msg := make(map[string]interface{}, len(n.metadata)+4)

	for k, v := range n.metadata {
		msg[k] = v
	}

	msg["event"] = string(event.Type)
	msg["source"] = event.Source
	msg["payload"] = event.Payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	return msg
}

// publishShutdown is sent from Stop rather than via the bus so it goes out
// before the connection drops, whatever order the bus tears down in.
func (n *Notifier) publishShutdown() {
	n.publish(topicFor(n.cfg.TopicPrefix, events.EventShutdown), events.Event{
		Type:   events.EventShutdown,
		Source: "telemetry",
	}, 1)
}

// topicFor maps an event type onto the broker topic tree. Dots become
// slashes, so match.created publishes to <prefix>/match/created.
func topicFor(prefix string, t events.EventType) string {
	topic := strings.ReplaceAll(string(t), ".", "/")
	if prefix == "" {
		return topic
	}
	return prefix + "/" + topic
}
