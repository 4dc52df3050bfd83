package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunoxcamillo/drop-call-app/internal/intake"
	"github.com/brunoxcamillo/drop-call-app/internal/store"
)

type fakeResolver struct {
	shops map[string]store.StoreRecord
	err   error
}

func (f *fakeResolver) StoreByDomain(_ context.Context, domain string) (store.StoreRecord, error) {
	if f.err != nil {
		return store.StoreRecord{}, f.err
	}
	shop, ok := f.shops[domain]
	if !ok {
		return store.StoreRecord{}, store.ErrNotFound
	}
	return shop, nil
}

type fakeCommerce struct {
	created  []intake.OrderPayload
	canceled []string
	err      error
}

func (f *fakeCommerce) HandleOrderCreated(_ context.Context, _ store.StoreRecord, payload intake.OrderPayload) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, payload)
	return nil
}

func (f *fakeCommerce) HandleOrderCanceled(_ context.Context, _ store.StoreRecord, externalID string) error {
	if f.err != nil {
		return f.err
	}
	f.canceled = append(f.canceled, externalID)
	return nil
}

type fakeReplies struct {
	phones []string
	texts  []string
	err    error
}

func (f *fakeReplies) HandleReply(_ context.Context, phone, text string) error {
	if f.err != nil {
		return f.err
	}
	f.phones = append(f.phones, phone)
	f.texts = append(f.texts, text)
	return nil
}

func newTestServer(resolver *fakeResolver, commerce *fakeCommerce, replies *fakeReplies) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(logger, ":0", resolver, commerce, replies).Handler
}

func commerceRequest(domain, topic, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/commerce", strings.NewReader(body))
	if domain != "" {
		req.Header.Set(headerShopDomain, domain)
	}
	if topic != "" {
		req.Header.Set(headerShopTopic, topic)
	}
	return req
}

func TestHealthz(t *testing.T) {
	h := newTestServer(&fakeResolver{}, &fakeCommerce{}, &fakeReplies{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "true")
}

func TestCommerceOrderCreated(t *testing.T) {
	resolver := &fakeResolver{shops: map[string]store.StoreRecord{
		"loja.example.com": {ID: "store-1", Domain: "loja.example.com"},
	}}
	commerce := &fakeCommerce{}
	h := newTestServer(resolver, commerce, &fakeReplies{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, commerceRequest("loja.example.com", topicOrderCreated, `{"id": 900001, "order_number": 1042}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, commerce.created, 1)
	assert.Equal(t, "900001", commerce.created[0].ID.String())
}

func TestCommerceOrderCanceled(t *testing.T) {
	resolver := &fakeResolver{shops: map[string]store.StoreRecord{
		"loja.example.com": {ID: "store-1"},
	}}
	commerce := &fakeCommerce{}
	h := newTestServer(resolver, commerce, &fakeReplies{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, commerceRequest("loja.example.com", topicOrderCanceled, `{"id": 900001}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"900001"}, commerce.canceled)
}

func TestCommerceValidation(t *testing.T) {
	resolver := &fakeResolver{shops: map[string]store.StoreRecord{
		"loja.example.com": {ID: "store-1"},
	}}

	cases := []struct {
		name     string
		req      *http.Request
		wantCode int
	}{
		{"missing headers", commerceRequest("", "", `{}`), http.StatusBadRequest},
		{"invalid json", commerceRequest("loja.example.com", topicOrderCreated, `{not json`), http.StatusBadRequest},
		{"missing order id", commerceRequest("loja.example.com", topicOrderCreated, `{"order_number": 1}`), http.StatusBadRequest},
		{"unknown store acks", commerceRequest("ghost.example.com", topicOrderCreated, `{"id": 1}`), http.StatusOK},
		{"unknown topic acks", commerceRequest("loja.example.com", "orders/paid", `{"id": 1}`), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			commerce := &fakeCommerce{}
			h := newTestServer(resolver, commerce, &fakeReplies{})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tc.req)
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.Empty(t, commerce.created)
			assert.Empty(t, commerce.canceled)
		})
	}
}

func TestCommerceHandlerErrorIs500(t *testing.T) {
	resolver := &fakeResolver{shops: map[string]store.StoreRecord{
		"loja.example.com": {ID: "store-1"},
	}}
	commerce := &fakeCommerce{err: errors.New("db down")}
	h := newTestServer(resolver, commerce, &fakeReplies{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, commerceRequest("loja.example.com", topicOrderCreated, `{"id": 900001}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCommerceStoreLookupErrorIs500(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("db down")}
	h := newTestServer(resolver, &fakeCommerce{}, &fakeReplies{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, commerceRequest("loja.example.com", topicOrderCreated, `{"id": 900001}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestReplyWebhook(t *testing.T) {
	replies := &fakeReplies{}
	h := newTestServer(&fakeResolver{}, &fakeCommerce{}, replies)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/reply",
		strings.NewReader(`{"phone":"5511988776655","text":{"message":"1"}}`))
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"5511988776655"}, replies.phones)
	assert.Equal(t, []string{"1"}, replies.texts)
}

func TestReplyWebhookAlwaysAcks(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		replies *fakeReplies
	}{
		{"undecodable body", `{nope`, &fakeReplies{}},
		{"missing phone", `{"text":{"message":"1"}}`, &fakeReplies{}},
		{"handler failure", `{"phone":"5511988776655","text":{"message":"1"}}`, &fakeReplies{err: errors.New("boom")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestServer(&fakeResolver{}, &fakeCommerce{}, tc.replies)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/reply", strings.NewReader(tc.body)))
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(&fakeResolver{}, &fakeCommerce{}, &fakeReplies{})
	for _, path := range []string{"/webhooks/commerce", "/webhooks/reply"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}
