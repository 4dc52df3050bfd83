package tagsync

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunoxcamillo/drop-call-app/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// adminServer is a TLS test server whose client resolves any host to it, so
// the syncer's https://{domain}/... URLs land here.
func adminServer(t *testing.T, handler http.Handler) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	addr := srv.Listener.Addr().String()
	client := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, network, addr)
			},
		},
	}
	return srv, client
}

func testShop() store.StoreRecord {
	return store.StoreRecord{
		ID:               "store-1",
		Domain:           "loja.example.com",
		AdminAccessToken: "shpat_test",
	}
}

func TestSyncOrderTagsGraphQL(t *testing.T) {
	var gotToken string
	var gotBody map[string]any
	_, client := adminServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data":{"tagsAdd":{"userErrors":[]}}}`))
	}))

	s := New(discardLogger(), WithHTTPClient(client))
	order := store.OrderRecord{
		ID:         "ord-1",
		StoreID:    "store-1",
		ExternalID: "900001",
		Status:     store.OrderStatusConfirmed,
	}
	require.NoError(t, s.SyncOrderTags(context.Background(), testShop(), order))

	assert.Equal(t, "shpat_test", gotToken)
	vars := gotBody["variables"].(map[string]any)
	assert.Equal(t, "gid://shopify/Order/900001", vars["id"])
	assert.Equal(t, []any{"confirmed"}, vars["tags"])
}

func TestSyncOrderTagsRESTFallback(t *testing.T) {
	var paths []string
	var putBody map[string]any
	_, client := adminServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost: // graphql
			w.WriteHeader(http.StatusInternalServerError)
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"order":{"tags":"vip, confirmed"}}`))
		case r.Method == http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&putBody))
			_, _ = w.Write([]byte(`{"order":{}}`))
		}
	}))

	s := New(discardLogger(), WithHTTPClient(client))
	order := store.OrderRecord{
		ID:         "ord-1",
		StoreID:    "store-1",
		ExternalID: "900001",
		Status:     store.OrderStatusAddressChange,
	}
	require.NoError(t, s.SyncOrderTags(context.Background(), testShop(), order))

	require.Len(t, paths, 3)
	assert.Contains(t, paths[1], "GET /admin/api/")
	assert.Contains(t, paths[2], "PUT /admin/api/")

	orderBody := putBody["order"].(map[string]any)
	// Existing tags survive, the new one is appended, duplicates are not.
	assert.Equal(t, "vip, confirmed, address_change_requested", orderBody["tags"])
}

func TestSyncOrderTagsSkips(t *testing.T) {
	_, client := adminServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("admin api must not be called")
	}))
	s := New(discardLogger(), WithHTTPClient(client))
	ctx := context.Background()

	// Statuses without a tag mapping are a no-op.
	require.NoError(t, s.SyncOrderTags(ctx, testShop(), store.OrderRecord{
		ID: "ord-1", ExternalID: "900001", Status: store.OrderStatusCanceled,
	}))

	// Stores without credentials skip quietly.
	require.NoError(t, s.SyncOrderTags(ctx, store.StoreRecord{Domain: "loja.example.com"}, store.OrderRecord{
		ID: "ord-1", ExternalID: "900001", Status: store.OrderStatusConfirmed,
	}))
}

func TestSyncOrderTagsNeedsOrderIdentity(t *testing.T) {
	s := New(discardLogger())
	err := s.SyncOrderTags(context.Background(), testShop(), store.OrderRecord{
		ID: "ord-1", Status: store.OrderStatusConfirmed,
	})
	assert.Error(t, err)
}

func TestMergeTags(t *testing.T) {
	assert.Equal(t, []string{"vip", "confirmed"}, mergeTags("vip", []string{"confirmed"}))
	assert.Equal(t, []string{"confirmed"}, mergeTags("", []string{"confirmed"}))
	assert.Equal(t, []string{"confirmed"}, mergeTags("confirmed", []string{"confirmed"}))
	assert.Equal(t, []string{"a", "b", "c"}, mergeTags(" a ,b, a ", []string{"c", "b"}))
}
