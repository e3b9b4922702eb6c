package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// DefaultBufferSize is how many messages are kept while disconnected.
const DefaultBufferSize = 100

const publishTimeout = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topics   Topics

	// SwitchTopic is where the wireless switch listens. Empty disables
	// PublishSwitch.
	SwitchTopic    string
	SwitchPayloads SwitchPayloads

	// WillPayload is published retained on Topics.System by the broker if the
	// connection drops uncleanly.
	WillPayload []byte

	BufferSize     int
	ConnectRetries uint64        // initial connect attempts after the first
	ConnectTimeout time.Duration // per attempt

	// OnCommand receives every payload on Topics.Command. It runs on the
	// paho callback goroutine and must not block.
	OnCommand func(payload string)

	// OnConnectionChange is called with true after every (re)connect and with
	// false when the connection is lost.
	OnConnectionChange func(connected bool)
}

// ErrNoSwitchTopic is returned by PublishSwitch when no switch is configured.
var ErrNoSwitchTopic = errors.New("mqtt: no switch topic configured")

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	opts   Options

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher connects to the broker, retrying the first connection
// with exponential backoff. After that paho reconnects on its own and
// messages published while offline are buffered and replayed.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.SwitchPayloads == (SwitchPayloads{}) {
		opts.SwitchPayloads = DefaultSwitchPayloads()
	}

	p := &RealPublisher{
		opts:   opts,
		buffer: newRingBuffer(opts.BufferSize),
	}

	copts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)
	if opts.WillPayload != nil {
		copts.SetBinaryWill(opts.Topics.System, opts.WillPayload, 1, true)
	}

	p.client = paho.NewClient(copts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	err := backoff.Retry(func() error {
		token := p.client.Connect()
		if !token.WaitTimeout(opts.ConnectTimeout) {
			log.Warn().Str("broker", opts.Broker).Msg("mqtt connection timeout")
			return fmt.Errorf("connection timeout")
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("broker", opts.Broker).Msg("mqtt connect failed")
			return err
		}
		return nil
	}, backoff.WithMaxRetries(bo, opts.ConnectRetries))
	if err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", opts.Broker, err)
	}

	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	log.Info().Str("broker", p.opts.Broker).Msg("mqtt connected")

	if p.opts.OnCommand != nil && p.opts.Topics.Command != "" {
		token := c.Subscribe(p.opts.Topics.Command, 1, func(_ paho.Client, m paho.Message) {
			p.opts.OnCommand(string(m.Payload()))
		})
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", p.opts.Topics.Command).Msg("mqtt subscribe failed")
		}
	}

	p.replay()

	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(true)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	log.Warn().Err(err).Msg("mqtt connection lost")
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(false)
	}
}

func (p *RealPublisher) replay() {
	p.mu.Lock()
	msgs := p.buffer.drainAll()
	dropped := p.buffer.takeDropped()
	p.mu.Unlock()

	if len(msgs) > 0 {
		log.Info().Int("count", len(msgs)).Int("dropped", dropped).Msg("mqtt replaying buffered messages")
	}
	for i, m := range msgs {
		if err := p.send(m); err != nil {
			// Put the rest back and wait for the next reconnect.
			p.mu.Lock()
			for _, rest := range msgs[i:] {
				p.buffer.push(rest)
			}
			p.mu.Unlock()
			log.Warn().Err(err).Msg("mqtt replay interrupted")
			return
		}
	}
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// publish sends m now, or buffers it while the connection is down.
func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(m)
		p.mu.Unlock()
		return nil
	}
	if err := p.send(m); err != nil {
		p.mu.Lock()
		p.buffer.push(m)
		p.mu.Unlock()
		return err
	}
	return nil
}

// PublishStatus sends the status snapshot, retained, QoS 0.
func (p *RealPublisher) PublishStatus(payload []byte) error {
	return p.publish(bufferedMsg{topic: p.opts.Topics.Status, payload: payload, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(bufferedMsg{topic: p.opts.Topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// PublishSwitch sends the switch command. Switch commands are not buffered:
// a stale ON replayed later could start the fan against the hysteresis.
func (p *RealPublisher) PublishSwitch(on bool) error {
	if p.opts.SwitchTopic == "" {
		return ErrNoSwitchTopic
	}
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("publish switch: not connected")
	}
	return p.send(bufferedMsg{topic: p.opts.SwitchTopic, payload: []byte(p.opts.SwitchPayloads.For(on)), qos: 1})
}

// IsConnected reports whether the connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
