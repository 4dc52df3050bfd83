package dialog

import "strings"

// Classify maps a raw customer reply to an intent. The grammar is a strict
// numeric menu and depends on the state the session is currently in; free
// text is only meaningful while an address is being collected.
func Classify(state State, text string) Intent {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return IntentUnknown
	}

	switch state {
	case StateStart, StateAwaitingConfirm:
		switch t {
		case "1":
			return IntentConfirm
		case "2":
			return IntentChangeAddress
		}
		return IntentUnknown

	case StateAwaitingNewAddress:
		// Menu digits are reserved here; anything else is the proposed address.
		switch t {
		case "1", "2", "3":
			return IntentUnknown
		}
		return IntentProvideAddress

	case StateReviewNewAddress:
		switch t {
		case "1":
			return IntentConfirm
		case "2":
			return IntentGoBack
		case "3":
			return IntentCancelAddrChange
		}
		return IntentUnknown
	}

	return IntentUnknown
}
