package mqtt

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// Statuses contains every status payload that was published.
	Statuses [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Switches contains every switch command that was published.
	Switches []bool

	// PublishError, if set, will be returned by PublishStatus.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// SwitchError, if set, will be returned by PublishSwitch.
	SwitchError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishStatus records the status payload.
func (f *FakePublisher) PublishStatus(payload []byte) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Statuses = append(f.Statuses, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// PublishSwitch records the switch command.
func (f *FakePublisher) PublishSwitch(on bool) error {
	if f.SwitchError != nil {
		return f.SwitchError
	}
	f.Switches = append(f.Switches, on)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.Statuses = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Switches = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.SwitchError = nil
	f.Connected = false
}
