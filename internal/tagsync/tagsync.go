// Package tagsync propagates the outcome of a conversation back to the
// commerce platform as order tags. It is a best-effort secondary effect:
// every failure here is logged and swallowed.
package tagsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brunoxcamillo/drop-call-app/internal/store"
)

const defaultAPIVersion = "2025-07"

var statusTags = map[string][]string{
	store.OrderStatusConfirmed:     {"confirmed"},
	store.OrderStatusAddressChange: {"address_change_requested"},
}

type Option func(*Syncer)

type Syncer struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiVersion string
}

func New(logger *slog.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		apiVersion: defaultAPIVersion,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func WithHTTPClient(client *http.Client) Option {
	return func(s *Syncer) {
		if client != nil {
			s.httpClient = client
		}
	}
}

func WithAPIVersion(version string) Option {
	return func(s *Syncer) {
		if strings.TrimSpace(version) != "" {
			s.apiVersion = version
		}
	}
}

// SyncOrderTags adds the tags implied by the order's persisted status.
// GraphQL tagsAdd is tried first (additive, no clobbering); the REST
// merge-and-put path is the fallback. Stores without admin credentials
// skip with a warning.
func (s *Syncer) SyncOrderTags(ctx context.Context, shop store.StoreRecord, order store.OrderRecord) error {
	tags, ok := statusTags[order.Status]
	if !ok {
		return nil
	}
	if shop.Domain == "" || shop.AdminAccessToken == "" {
		s.logger.Warn("store missing admin credentials, skipping tag sync",
			slog.String("store_id", order.StoreID))
		return nil
	}
	if order.ExternalID == "" && order.AdminGID == "" {
		return fmt.Errorf("order %s has no external id for tag sync", order.ID)
	}

	gid := order.AdminGID
	if gid == "" {
		gid = "gid://shopify/Order/" + order.ExternalID
	}

	if err := s.addTagsGraphQL(ctx, shop, gid, tags); err == nil {
		return nil
	} else {
		s.logger.Warn("graphql tag sync failed, trying rest fallback",
			slog.String("order_id", order.ID), slog.Any("error", err))
	}
	return s.addTagsREST(ctx, shop, order.ExternalID, tags)
}

const tagsAddMutation = `mutation AddTags($id: ID!, $tags: [String!]!) {
  tagsAdd(id: $id, tags: $tags) {
    userErrors { field message }
    node { id }
  }
}`

func (s *Syncer) addTagsGraphQL(ctx context.Context, shop store.StoreRecord, orderGID string, tags []string) error {
	reqBody, err := json.Marshal(map[string]any{
		"query":     tagsAddMutation,
		"variables": map[string]any{"id": orderGID, "tags": tags},
	})
	if err != nil {
		return fmt.Errorf("marshal graphql request: %w", err)
	}

	raw, err := s.do(ctx, http.MethodPost, s.graphqlURL(shop.Domain), shop.AdminAccessToken, reqBody)
	if err != nil {
		return err
	}

	var resp struct {
		Errors []any `json:"errors"`
		Data   struct {
			TagsAdd struct {
				UserErrors []struct {
					Field   []string `json:"field"`
					Message string   `json:"message"`
				} `json:"userErrors"`
			} `json:"tagsAdd"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("graphql errors: %d", len(resp.Errors))
	}
	if n := len(resp.Data.TagsAdd.UserErrors); n > 0 {
		return fmt.Errorf("tagsAdd user errors: %s", resp.Data.TagsAdd.UserErrors[0].Message)
	}
	return nil
}

// addTagsREST fetches the current tag list, merges, and writes it back.
func (s *Syncer) addTagsREST(ctx context.Context, shop store.StoreRecord, externalID string, tags []string) error {
	if externalID == "" {
		return fmt.Errorf("rest tag sync needs an external order id")
	}
	url := s.restOrderURL(shop.Domain, externalID)

	raw, err := s.do(ctx, http.MethodGet, url, shop.AdminAccessToken, nil)
	if err != nil {
		return err
	}
	var current struct {
		Order struct {
			Tags string `json:"tags"`
		} `json:"order"`
	}
	if err := json.Unmarshal(raw, &current); err != nil {
		return fmt.Errorf("decode order tags: %w", err)
	}

	merged := mergeTags(current.Order.Tags, tags)
	reqBody, err := json.Marshal(map[string]any{
		"order": map[string]any{"id": externalID, "tags": strings.Join(merged, ", ")},
	})
	if err != nil {
		return fmt.Errorf("marshal rest request: %w", err)
	}
	_, err = s.do(ctx, http.MethodPut, url, shop.AdminAccessToken, reqBody)
	return err
}

func (s *Syncer) graphqlURL(domain string) string {
	return fmt.Sprintf("https://%s/admin/api/%s/graphql.json", domain, s.apiVersion)
}

func (s *Syncer) restOrderURL(domain, externalID string) string {
	return fmt.Sprintf("https://%s/admin/api/%s/orders/%s.json", domain, s.apiVersion, externalID)
}

func (s *Syncer) do(ctx context.Context, method, url, token string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build admin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("admin request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read admin response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("admin status=%d body=%q", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func mergeTags(current string, extra []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(extra)+4)
	for _, t := range strings.Split(current, ",") {
		t = strings.TrimSpace(t)
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
