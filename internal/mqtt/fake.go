package mqtt

import "context"

// FakePublisher records published records for test assertions.
type FakePublisher struct {
	// Records contains all feedback records that were published.
	Records []Record

	// Payloads contains the JSON payloads of published records.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// ConnectError, if set, will be returned by Connect.
	ConnectError error

	// PublishError, if set, will be returned by PublishRecord.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// ConnectCalls counts calls to Connect that found no open session.
	ConnectCalls int

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected. Connect sets it on success.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Connect marks the fake as connected unless ConnectError is set.
func (f *FakePublisher) Connect(ctx context.Context) error {
	if f.Connected {
		return nil
	}
	f.ConnectCalls++
	if f.ConnectError != nil {
		return f.ConnectError
	}
	f.Connected = true
	return nil
}

// PublishRecord records the feedback record.
func (f *FakePublisher) PublishRecord(rec Record) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatRecord(rec)
	if err != nil {
		return err
	}
	f.Records = append(f.Records, rec)
	f.Payloads = append(f.Payloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

// Close marks the publisher as closed and disconnected.
func (f *FakePublisher) Close() error {
	f.Closed = true
	f.Connected = false
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded events and injected errors.
func (f *FakePublisher) Reset() {
	f.Records = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.ConnectError = nil
	f.PublishError = nil
	f.PublishSystemError = nil
	f.ConnectCalls = 0
	f.Closed = false
	f.Connected = false
}
