// Package httpapi exposes the webhook surface. Both webhook sources want a
// fast acknowledgment: the commerce platform retries on 5xx, the messaging
// gateway does not benefit from synchronous retry at all.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brunoxcamillo/drop-call-app/internal/intake"
	"github.com/brunoxcamillo/drop-call-app/internal/store"
)

const (
	headerShopDomain = "X-Shop-Domain"
	headerShopTopic  = "X-Shop-Topic"

	topicOrderCreated  = "orders/create"
	topicOrderCanceled = "orders/cancelled"

	maxBodyBytes = 2 << 20
)

// StoreResolver resolves the tenant for a commerce webhook.
type StoreResolver interface {
	StoreByDomain(ctx context.Context, domain string) (store.StoreRecord, error)
}

// CommerceHandler is the slice of the commerce intake service the server needs.
type CommerceHandler interface {
	HandleOrderCreated(ctx context.Context, shop store.StoreRecord, payload intake.OrderPayload) error
	HandleOrderCanceled(ctx context.Context, shop store.StoreRecord, externalID string) error
}

// ReplyHandler is the slice of the conversation intake service the server needs.
type ReplyHandler interface {
	HandleReply(ctx context.Context, phone, text string) error
}

type server struct {
	logger   *slog.Logger
	stores   StoreResolver
	commerce CommerceHandler
	replies  ReplyHandler
}

func NewServer(logger *slog.Logger, addr string, stores StoreResolver, commerce CommerceHandler, replies ReplyHandler) *http.Server {
	h := &server{logger: logger, stores: stores, commerce: commerce, replies: replies}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/webhooks/commerce", h.handleCommerce)
	mux.HandleFunc("/webhooks/reply", h.handleReply)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleCommerce answers 200 for anything it cannot act on — an unknown
// store or topic must not trigger an upstream retry storm. 500 is reserved
// for processing failures we actually want redelivered.
func (s *server) handleCommerce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	domain := strings.TrimSpace(r.Header.Get(headerShopDomain))
	topic := strings.TrimSpace(r.Header.Get(headerShopTopic))
	if domain == "" || topic == "" {
		http.Error(w, "missing shop headers", http.StatusBadRequest)
		return
	}

	shop, err := s.stores.StoreByDomain(r.Context(), domain)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("webhook for unknown store", slog.String("domain", domain))
			writeText(w, http.StatusOK, "store not found")
			return
		}
		s.logger.Error("store lookup failed", slog.String("domain", domain), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}

	switch topic {
	case topicOrderCreated:
		var payload intake.OrderPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if payload.ID.String() == "" {
			http.Error(w, "missing order id", http.StatusBadRequest)
			return
		}
		if err := s.commerce.HandleOrderCreated(r.Context(), shop, payload); err != nil {
			s.logger.Error("order created processing failed",
				slog.String("domain", domain), slog.Any("error", err))
			http.Error(w, "error", http.StatusInternalServerError)
			return
		}

	case topicOrderCanceled:
		var payload struct {
			ID json.Number `json:"id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if payload.ID.String() == "" {
			http.Error(w, "missing order id", http.StatusBadRequest)
			return
		}
		if err := s.commerce.HandleOrderCanceled(r.Context(), shop, payload.ID.String()); err != nil {
			s.logger.Error("order canceled processing failed",
				slog.String("domain", domain), slog.Any("error", err))
			http.Error(w, "error", http.StatusInternalServerError)
			return
		}

	default:
		s.logger.Warn("unhandled webhook topic",
			slog.String("domain", domain), slog.String("topic", topic))
	}

	writeText(w, http.StatusOK, "ok")
}

// handleReply always acknowledges: a failed turn is recovered by the
// customer's next message, not by a webhook redelivery.
func (s *server) handleReply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var body struct {
		Phone string `json:"phone"`
		Text  struct {
			Message string `json:"message"`
		} `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		s.logger.Warn("undecodable reply webhook", slog.Any("error", err))
		writeText(w, http.StatusOK, "ok")
		return
	}
	if strings.TrimSpace(body.Phone) == "" {
		s.logger.Warn("reply webhook without phone")
		writeText(w, http.StatusOK, "ok")
		return
	}

	if err := s.replies.HandleReply(r.Context(), body.Phone, body.Text.Message); err != nil {
		s.logger.Error("reply processing failed",
			slog.String("phone", body.Phone), slog.Any("error", err))
	}
	writeText(w, http.StatusOK, "ok")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
