package liveview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func newTestApiServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/catalog/items", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.Header.Get("Authorization"), "Bearer test-jwt")
		json.NewEncoder(w).Encode(&ItemsResult{
			Items: []Item{itemCactus, itemApple, itemBanana},
		})
	})
	mux.HandleFunc("/catalog/zones/9/items", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&ItemsResult{
			Items: []Item{itemApple, itemBanana},
		})
	})
	mux.HandleFunc("/catalog/sort-order", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(&SortOrderResult{
			ItemIds: []string{"b", "a"},
		})
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		args := &AuthLoginArgs{}
		json.NewDecoder(r.Body).Decode(args)
		if args.Password != "hunter2" {
			http.Error(w, "Invalid login.", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(&AuthLoginResult{
			Network: &AuthLoginResultNetwork{
				ByJwt:       "test-jwt",
				NetworkName: args.UserAuth,
			},
		})
	})
	return httptest.NewServer(mux)
}

func TestCatalogApiFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newTestApiServer(t)
	defer server.Close()

	api := NewCatalogApiWithContext(ctx, server.URL)
	defer api.Close()
	api.SetByJwt("test-jwt")

	// fetch order is arbitrary. callers must not rely on it.
	items, err := api.FetchAll(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, items, []Item{itemCactus, itemApple, itemBanana})

	items, err = api.FetchZone(ctx, 9)
	assert.Equal(t, err, nil)
	assert.Equal(t, items, []Item{itemApple, itemBanana})

	order, err := api.FetchSortOrder(ctx)
	assert.Equal(t, err, nil)
	assert.Equal(t, order, SortOrder{"b", "a"})
}

func TestCatalogApiCallbacks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newTestApiServer(t)
	defer server.Close()

	api := NewCatalogApiWithContext(ctx, server.URL)
	defer api.Close()
	api.SetByJwt("test-jwt")

	callback, c := NewBlockingApiCallback[*ItemsResult]()
	api.GetZoneItems(9, callback)
	result := <-c
	assert.Equal(t, result.Error, nil)
	assert.Equal(t, result.Result.Items, []Item{itemApple, itemBanana})

	orderCallback, orderC := NewBlockingApiCallback[*SortOrderResult]()
	api.GetSortOrder(orderCallback)
	orderResult := <-orderC
	assert.Equal(t, orderResult.Error, nil)
	assert.Equal(t, orderResult.Result.ItemIds, []string{"b", "a"})
}

func TestCatalogApiAuthLogin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := newTestApiServer(t)
	defer server.Close()

	api := NewCatalogApiWithContext(ctx, server.URL)
	defer api.Close()

	callback, c := NewBlockingApiCallback[*AuthLoginResult]()
	api.AuthLogin(&AuthLoginArgs{UserAuth: "pat@example.com", Password: "hunter2"}, callback)
	result := <-c
	assert.Equal(t, result.Error, nil)
	assert.Equal(t, result.Result.Network.ByJwt, "test-jwt")
	assert.Equal(t, result.Result.Network.NetworkName, "pat@example.com")

	// a non-200 response surfaces the body as the error message
	badCallback, badC := NewBlockingApiCallback[*AuthLoginResult]()
	api.AuthLogin(&AuthLoginArgs{UserAuth: "pat@example.com", Password: "wrong"}, badCallback)
	badResult := <-badC
	assert.NotEqual(t, badResult.Error, nil)
}

func TestCatalogApiFetchError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Server on fire.", http.StatusInternalServerError)
	}))
	defer server.Close()

	api := NewCatalogApiWithContext(ctx, server.URL)
	defer api.Close()

	_, err := api.FetchAll(ctx)
	assert.NotEqual(t, err, nil)
}

func TestParseByJwtUnverified(t *testing.T) {
	// header {"alg":"none"} and claims {"network_name":"acme","user_auth":"pat@example.com"}
	byJwtStr := "eyJhbGciOiJub25lIn0." +
		"eyJuZXR3b3JrX25hbWUiOiJhY21lIiwidXNlcl9hdXRoIjoicGF0QGV4YW1wbGUuY29tIn0."

	byJwt, err := ParseByJwtUnverified(byJwtStr)
	assert.Equal(t, err, nil)
	assert.Equal(t, byJwt.NetworkName, "acme")
	assert.Equal(t, byJwt.UserAuth, "pat@example.com")
}
