package dialog

import "time"

// Result is what one turn of the engine decides: the next state, a fresh
// context value, the full history including any new checkpoint, and the
// ordered plan of outbound messages. The engine never delivers or persists
// anything itself; committing the decision is the caller's job.
type Result struct {
	State    State
	Context  map[string]string
	History  []Checkpoint
	Messages []Message
}

// Reduce advances a session by one turn. It is a pure function: the input
// session is never mutated, and the output is fully determined by
// (session, intent, text, now).
func Reduce(sess Session, intent Intent, text string, now time.Time) Result {
	state := sess.State
	if state == "" {
		state = StateStart
	}

	ctx := make(map[string]string, len(sess.Context)+1)
	for k, v := range sess.Context {
		ctx[k] = v
	}

	history := sess.History
	out := make([]Message, 0, 2)
	next := state

	switch state {
	case StateStart:
		// The very first turn always checkpoints, even on a re-prompt.
		history = appendCheckpoint(history, state, now)
		switch intent {
		case IntentConfirm:
			next = StateDone
			ctx[CtxOrderStatus] = "confirmed"
			out = append(out, template(KeyConfirmOrder))
		case IntentChangeAddress:
			next = StateAwaitingNewAddress
			out = append(out, template(KeyChangeAddress))
		default:
			next = StateAwaitingConfirm
			out = append(out, template(KeyInvalidResponse), template(KeyMainMenu))
		}

	case StateAwaitingConfirm:
		switch intent {
		case IntentConfirm:
			history = appendCheckpoint(history, state, now)
			next = StateDone
			ctx[CtxOrderStatus] = "confirmed"
			out = append(out, template(KeyConfirmOrder))
		case IntentChangeAddress:
			history = appendCheckpoint(history, state, now)
			next = StateAwaitingNewAddress
			out = append(out, template(KeyChangeAddress))
		default:
			out = append(out, template(KeyInvalidResponse), template(KeyMainMenu))
		}

	case StateAwaitingNewAddress:
		if intent == IntentProvideAddress {
			ctx[CtxCandidateAddress] = text
			history = appendCheckpoint(history, state, now)
			next = StateReviewNewAddress
			out = append(out,
				templateVars(KeyAddressEcho, map[string]string{"address": text}),
				template(KeyConfirmAddressPrompt),
			)
		} else {
			out = append(out, template(KeyInvalidResponse), template(KeyChangeAddress))
		}

	case StateReviewNewAddress:
		switch intent {
		case IntentConfirm:
			history = appendCheckpoint(history, state, now)
			next = StateDone
			ctx[CtxOrderStatus] = "address_change"
			out = append(out, template(KeyChangeAddressResponse))
		case IntentGoBack:
			history = appendCheckpoint(history, state, now)
			next = StateAwaitingNewAddress
			out = append(out, template(KeyChangeAddress))
		case IntentCancelAddrChange:
			// Cancels the address change, not the order.
			history = appendCheckpoint(history, state, now)
			next = StateAwaitingConfirm
			out = append(out, template(KeyMainMenu))
		default:
			out = append(out, template(KeyInvalidResponse), template(KeyConfirmAddressPrompt))
		}

	case StateDone:
		out = append(out, template(KeyAlreadyFinished))

	default:
		history = appendCheckpoint(history, state, now)
		next = StateStart
		out = append(out, template(KeyFallbackRestart))
	}

	return Result{State: next, Context: ctx, History: history, Messages: out}
}

func appendCheckpoint(history []Checkpoint, state State, now time.Time) []Checkpoint {
	out := make([]Checkpoint, 0, len(history)+1)
	out = append(out, history...)
	return append(out, Checkpoint{State: state, At: now})
}

func template(key string) Message {
	return Message{Kind: MessageKindTemplate, Key: key}
}

func templateVars(key string, vars map[string]string) Message {
	return Message{Kind: MessageKindTemplate, Key: key, Vars: vars}
}
