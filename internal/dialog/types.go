package dialog

import "time"

// State is the position of a conversation in the confirmation flow.
type State string

const (
	StateStart              State = "start"
	StateAwaitingConfirm    State = "awaiting_confirmation"
	StateAwaitingNewAddress State = "awaiting_new_address"
	StateReviewNewAddress   State = "review_new_address"
	StateDone               State = "done"
)

// Intent is the canonical action a customer reply maps to.
type Intent string

const (
	IntentConfirm          Intent = "confirm"
	IntentChangeAddress    Intent = "change_address"
	IntentProvideAddress   Intent = "provide_address"
	IntentGoBack           Intent = "go_back"
	IntentCancelAddrChange Intent = "cancel_addr_change"
	IntentUnknown          Intent = "unknown"
)

// Message template keys resolved against the per-country template table.
const (
	KeyConfirmOrder          = "confirm_order"
	KeyChangeAddress         = "change_address"
	KeyChangeAddressResponse = "change_address_response"
	KeyInvalidResponse       = "invalid_response"
	KeyMainMenu              = "main_menu"
	KeyAddressEcho           = "address_echo"
	KeyConfirmAddressPrompt  = "confirm_address_prompt"
	KeyAlreadyFinished       = "already_finished"
	KeyFallbackRestart       = "fallback_restart"
)

// Message kinds.
const (
	MessageKindTemplate = "template"
	MessageKindText     = "text"
)

// Message is one entry of the outbound plan produced by Reduce.
type Message struct {
	Kind string            `json:"kind"`
	Key  string            `json:"key,omitempty"`
	Vars map[string]string `json:"vars,omitempty"`
	Text string            `json:"text,omitempty"`
}

// Checkpoint records the state a session was in when it moved on.
type Checkpoint struct {
	State State     `json:"state"`
	At    time.Time `json:"at"`
}

// Session is the slice of a conversation the engine needs: where it is,
// what it has accumulated, and where it has been.
type Session struct {
	State   State
	Context map[string]string
	History []Checkpoint
}

// Context keys accumulated by the engine.
const (
	CtxOrderStatus      = "order_status"
	CtxCandidateAddress = "candidate_address"
)
