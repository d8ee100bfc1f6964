package mqttc

import (
	"errors"
	"sync"
)

var ErrQuotaExceeded = errors.New("send quota exceeded")

// FlowController enforces the server's Receive Maximum: how many QoS > 0
// PUBLISH flows the client may have unacknowledged at once. A quota slot is
// claimed before sending and returned when the final ack arrives.
// MQTT v5.0 spec: Section 4.9
type FlowController struct {
	mu    sync.Mutex
	limit uint16
	used  uint16
}

// NewFlowController creates a flow controller with the given receive
// maximum. Zero selects the protocol default of 65535.
func NewFlowController(receiveMaximum uint16) *FlowController {
	fc := &FlowController{}
	fc.SetReceiveMaximum(receiveMaximum)
	return fc
}

// ReceiveMaximum returns the active receive maximum.
func (f *FlowController) ReceiveMaximum() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit
}

// SetReceiveMaximum updates the receive maximum. Called when CONNACK
// advertises a value different from the default.
func (f *FlowController) SetReceiveMaximum(maximum uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if maximum == 0 {
		maximum = maxUint16
	}
	f.limit = maximum
}

// Available returns the number of free quota slots.
func (f *FlowController) Available() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used >= f.limit {
		return 0
	}
	return f.limit - f.used
}

// InFlight returns the number of claimed quota slots.
func (f *FlowController) InFlight() uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used
}

// CanSend reports whether at least one quota slot is free.
func (f *FlowController) CanSend() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used < f.limit
}

// Acquire claims a quota slot, failing with ErrQuotaExceeded when the
// receive maximum is already in flight.
func (f *FlowController) Acquire() error {
	if !f.TryAcquire() {
		return ErrQuotaExceeded
	}
	return nil
}

// TryAcquire claims a quota slot and reports whether one was free.
func (f *FlowController) TryAcquire() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.used >= f.limit {
		return false
	}
	f.used++
	return true
}

// Release returns a quota slot when an acknowledgment completes a flow.
// Releasing with nothing in flight is a no-op.
func (f *FlowController) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.used > 0 {
		f.used--
	}
}

// Reset drops all claimed slots, for use after a clean-session reconnect.
func (f *FlowController) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used = 0
}
