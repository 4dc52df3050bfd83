package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunoxcamillo/drop-call-app/internal/dialog"
	"github.com/brunoxcamillo/drop-call-app/internal/phone"
	"github.com/brunoxcamillo/drop-call-app/internal/queue"
	"github.com/brunoxcamillo/drop-call-app/internal/store"
)

// ConversationService consumes customer replies: classify, reduce, persist,
// enqueue delivery. It records what the engine decided but never applies
// order side effects — those wait until the worker has delivered.
type ConversationService struct {
	logger *slog.Logger
	store  store.Store
	queue  Publisher
	locks  *keyedMutex
	now    func() time.Time
}

func NewConversationService(logger *slog.Logger, st store.Store, publisher Publisher) *ConversationService {
	return &ConversationService{
		logger: logger,
		store:  st,
		queue:  publisher,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
}

// HandleReply advances the conversation for one inbound message. A phone
// with no known order is a benign no-op.
func (s *ConversationService) HandleReply(ctx context.Context, rawPhone, text string) error {
	p := phone.Normalize(rawPhone)
	if p == "" {
		return fmt.Errorf("invalid phone %q", rawPhone)
	}
	text = strings.TrimSpace(text)

	order, err := s.store.LatestOrderByPhone(ctx, p)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("reply from phone with no order, ignoring", slog.String("phone", p))
			return nil
		}
		return fmt.Errorf("lookup order by phone: %w", err)
	}

	shop, err := s.store.StoreByID(ctx, order.StoreID)
	if err != nil {
		return fmt.Errorf("lookup store: %w", err)
	}

	// One writer per (store, phone): concurrent replies from the same
	// customer advance the session one at a time.
	unlock := s.locks.Lock(shop.ID + ":" + p)
	defer unlock()

	sess, err := s.store.LoadOrCreateSession(ctx, shop.ID, p, order.ID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	intent := dialog.Classify(sess.State, text)
	result := dialog.Reduce(dialog.Session{
		State:   sess.State,
		Context: sess.Context,
		History: sess.History,
	}, intent, text, s.now().UTC())

	inboundPayload, err := json.Marshal(map[string]string{"phone": p, "text": text})
	if err != nil {
		return fmt.Errorf("marshal inbound payload: %w", err)
	}
	if err := s.store.AppendEvent(ctx, store.EventRecord{
		SessionID:   sess.ID,
		Direction:   store.DirectionIn,
		Payload:     inboundPayload,
		Intent:      intent,
		StateBefore: sess.State,
		StateAfter:  result.State,
	}); err != nil {
		return fmt.Errorf("log inbound turn: %w", err)
	}

	if err := s.store.SaveSession(ctx, sess.ID, result.State, result.Context, result.History); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if len(result.Messages) == 0 {
		return nil
	}

	job := queue.NewDialogueDeliveryJob(uuid.NewString(), queue.DialogueDelivery{
		OrderID:     order.ID,
		StoreID:     shop.ID,
		Phone:       p,
		CountryCode: shop.CountryCode,
		Messages:    result.Messages,
		Context:     result.Context,
	})
	if err := s.queue.Publish(ctx, job); err != nil {
		return fmt.Errorf("enqueue dialogue delivery: %w", err)
	}

	outboundPayload, err := json.Marshal(map[string]any{"messages": result.Messages})
	if err != nil {
		return fmt.Errorf("marshal outbound payload: %w", err)
	}
	if err := s.store.AppendEvent(ctx, store.EventRecord{
		SessionID:   sess.ID,
		Direction:   store.DirectionOut,
		Payload:     outboundPayload,
		StateBefore: result.State,
		StateAfter:  result.State,
	}); err != nil {
		return fmt.Errorf("log outbound turn: %w", err)
	}

	s.logger.Info("reply processed",
		slog.String("phone", p),
		slog.String("intent", string(intent)),
		slog.String("state_before", string(sess.State)),
		slog.String("state_after", string(result.State)))
	return nil
}
