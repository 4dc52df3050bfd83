package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brunoxcamillo/drop-call-app/internal/dialog"
)

// Kind tags the job payload variant.
type Kind string

const (
	KindInitialConfirmation Kind = "send_initial_confirmation"
	KindDialogueDelivery    Kind = "send_dialogue_messages"
)

var ErrUnknownJobKind = errors.New("unknown job kind")

// InitialConfirmation asks the worker to deliver the first outbound
// confirmation request for a freshly created order.
type InitialConfirmation struct {
	OrderID string `json:"orderId"`
	StoreID string `json:"storeId"`
}

// DialogueDelivery carries the engine's message plan for one turn, plus the
// decided-but-not-yet-committed context the worker applies after delivery.
type DialogueDelivery struct {
	OrderID     string            `json:"orderId"`
	StoreID     string            `json:"storeId"`
	Phone       string            `json:"phone"`
	CountryCode string            `json:"countryCode"`
	Messages    []dialog.Message  `json:"messages"`
	Context     map[string]string `json:"context,omitempty"`
}

// Job is a tagged variant: exactly one payload field is set, matching Kind.
// Key is the idempotency key carried as the broker message id.
type Job struct {
	ID   string
	Key  string
	Kind Kind

	InitialConfirmation *InitialConfirmation
	DialogueDelivery    *DialogueDelivery

	EnqueuedAt time.Time
}

func NewInitialConfirmationJob(id string, payload InitialConfirmation) Job {
	return Job{
		ID:                  id,
		Key:                 "confirm:" + payload.OrderID,
		Kind:                KindInitialConfirmation,
		InitialConfirmation: &payload,
	}
}

func NewDialogueDeliveryJob(id string, payload DialogueDelivery) Job {
	return Job{
		ID:               id,
		Key:              "dlg:" + payload.OrderID + ":" + id,
		Kind:             KindDialogueDelivery,
		DialogueDelivery: &payload,
	}
}

type jobEnvelope struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	Type       Kind            `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

func (j Job) MarshalJSON() ([]byte, error) {
	var payload any
	switch j.Kind {
	case KindInitialConfirmation:
		if j.InitialConfirmation == nil {
			return nil, fmt.Errorf("job %s: missing initial confirmation payload", j.ID)
		}
		payload = j.InitialConfirmation
	case KindDialogueDelivery:
		if j.DialogueDelivery == nil {
			return nil, fmt.Errorf("job %s: missing dialogue delivery payload", j.ID)
		}
		payload = j.DialogueDelivery
	default:
		return nil, fmt.Errorf("job %s: %w: %q", j.ID, ErrUnknownJobKind, j.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	return json.Marshal(jobEnvelope{
		ID:         j.ID,
		Key:        j.Key,
		Type:       j.Kind,
		Payload:    raw,
		EnqueuedAt: j.EnqueuedAt,
	})
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var env jobEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	out := Job{ID: env.ID, Key: env.Key, Kind: env.Type, EnqueuedAt: env.EnqueuedAt}
	switch env.Type {
	case KindInitialConfirmation:
		var p InitialConfirmation
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode initial confirmation payload: %w", err)
		}
		out.InitialConfirmation = &p
	case KindDialogueDelivery:
		var p DialogueDelivery
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("decode dialogue delivery payload: %w", err)
		}
		out.DialogueDelivery = &p
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobKind, env.Type)
	}

	*j = out
	return nil
}
