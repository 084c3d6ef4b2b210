package push

import (
	"time"
)

// Token is an opaque registration token issued by the push provider.
type Token struct {
	Value        string     `json:"value" firestore:"value"`
	DeviceID     string     `json:"device_id" firestore:"device_id"`
	IssuedAt     time.Time  `json:"issued_at" firestore:"issued_at"`
	SupersededAt *time.Time `json:"superseded_at,omitempty" firestore:"superseded_at,omitempty"`
}

// IsZero reports whether t holds no token.
func (t Token) IsZero() bool {
	return t.Value == ""
}

// TokenChange is the result of replacing the current token of a device.
type TokenChange struct {
	// Previous is the superseded token, nil when the device had none.
	Previous *Token
	Current  Token
	// Changed is false when the requested value was already current.
	Changed bool
}

// Rotated reports whether an existing token was superseded.
func (c TokenChange) Rotated() bool {
	return c.Changed && c.Previous != nil
}

// TokenRotation is emitted to listeners when a device token is superseded.
type TokenRotation struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Previous  Token     `json:"previous"`
	Current   Token     `json:"current"`
	RotatedAt time.Time `json:"rotated_at"`
}

// Message is a decoded push message as delivered by the host.
// ID is assigned per delivery attempt by the provider and is the only dedup key.
type Message struct {
	ID         string            `json:"message_id"`
	Payload    map[string]string `json:"data"`
	ReceivedAt time.Time         `json:"received_at"`
}

// Observation is the result of a dedup check.
type Observation int

const (
	FirstSeen Observation = iota
	Duplicate
)

func (o Observation) String() string {
	switch o {
	case FirstSeen:
		return "first-seen"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Outcome is the terminal state of an inbound message.
type Outcome string

const (
	OutcomeDelivered           Outcome = "delivered"
	OutcomeHandlerFailed       Outcome = "handler-failed"
	OutcomeDuplicateSuppressed Outcome = "duplicate-suppressed"
)

// HandlerStatus is the result of a single handler invocation.
type HandlerStatus string

const (
	HandlerOK      HandlerStatus = "ok"
	HandlerFailed  HandlerStatus = "failed"
	HandlerTimeout HandlerStatus = "timeout"
)

// HandlerResult records one handler invocation for a message.
type HandlerResult struct {
	Handler string        `json:"handler"`
	Status  HandlerStatus `json:"status"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed_ns"`
	Err     error         `json:"-"`
}

// DeliveryRecord is the immutable outcome of one inbound message.
type DeliveryRecord struct {
	MessageID string          `json:"message_id"`
	Outcome   Outcome         `json:"outcome"`
	Timestamp time.Time       `json:"timestamp"`
	Handlers  []HandlerResult `json:"handlers,omitempty"`
}

// Failed returns the handler results that did not succeed.
func (r DeliveryRecord) Failed() []HandlerResult {
	var failed []HandlerResult
	for _, h := range r.Handlers {
		if h.Status != HandlerOK {
			failed = append(failed, h)
		}
	}
	return failed
}
