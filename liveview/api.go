package liveview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

// RemoteSource is the remote catalog. Fetch order is arbitrary;
// callers must not rely on it. All operations may fail with a
// network-kind error.
type RemoteSource interface {
	FetchAll(ctx context.Context) ([]Item, error)
	FetchZone(ctx context.Context, zone int) ([]Item, error)
	FetchSortOrder(ctx context.Context) (SortOrder, error)
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// CatalogApi talks to the catalog platform. It implements `RemoteSource`.
type CatalogApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	byJwt string
}

func NewCatalogApi(apiUrl string) *CatalogApi {
	return NewCatalogApiWithContext(context.Background(), apiUrl)
}

func NewCatalogApiWithContext(ctx context.Context, apiUrl string) *CatalogApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &CatalogApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *CatalogApi) SetByJwt(byJwt string) {
	self.byJwt = byJwt
}

type GetItemsCallback apiCallback[*ItemsResult]

type ItemsResult struct {
	Items []Item `json:"items"`
}

func (self *CatalogApi) GetItems(callback GetItemsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/catalog/items", self.apiUrl),
		self.byJwt,
		&ItemsResult{},
		callback,
	)
}

func (self *CatalogApi) GetZoneItems(zone int, callback GetItemsCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/catalog/zones/%d/items", self.apiUrl, zone),
		self.byJwt,
		&ItemsResult{},
		callback,
	)
}

type GetSortOrderCallback apiCallback[*SortOrderResult]

type SortOrderResult struct {
	ItemIds []string `json:"item_ids"`
}

func (self *CatalogApi) GetSortOrder(callback GetSortOrderCallback) {
	go get(
		self.ctx,
		fmt.Sprintf("%s/catalog/sort-order", self.apiUrl),
		self.byJwt,
		&SortOrderResult{},
		callback,
	)
}

type AuthLoginCallback apiCallback[*AuthLoginResult]

type AuthLoginArgs struct {
	UserAuth string `json:"user_auth"`
	Password string `json:"password"`
}

type AuthLoginResult struct {
	Network *AuthLoginResultNetwork `json:"network,omitempty"`
	Error   *AuthLoginResultError   `json:"error,omitempty"`
}

type AuthLoginResultNetwork struct {
	ByJwt       string `json:"by_jwt"`
	NetworkName string `json:"name,omitempty"`
}

type AuthLoginResultError struct {
	Message string `json:"message"`
}

func (self *CatalogApi) AuthLogin(authLogin *AuthLoginArgs, callback AuthLoginCallback) {
	go post(
		self.ctx,
		fmt.Sprintf("%s/auth/login", self.apiUrl),
		authLogin,
		self.byJwt,
		&AuthLoginResult{},
		callback,
	)
}

// `RemoteSource`

func (self *CatalogApi) FetchAll(ctx context.Context) ([]Item, error) {
	result, err := get(
		ctx,
		fmt.Sprintf("%s/catalog/items", self.apiUrl),
		self.byJwt,
		&ItemsResult{},
		NewNoopApiCallback[*ItemsResult](),
	)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (self *CatalogApi) FetchZone(ctx context.Context, zone int) ([]Item, error) {
	result, err := get(
		ctx,
		fmt.Sprintf("%s/catalog/zones/%d/items", self.apiUrl, zone),
		self.byJwt,
		&ItemsResult{},
		NewNoopApiCallback[*ItemsResult](),
	)
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

func (self *CatalogApi) FetchSortOrder(ctx context.Context) (SortOrder, error) {
	result, err := get(
		ctx,
		fmt.Sprintf("%s/catalog/sort-order", self.apiUrl),
		self.byJwt,
		&SortOrderResult{},
		NewNoopApiCallback[*SortOrderResult](),
	)
	if err != nil {
		return nil, err
	}
	return SortOrder(result.ItemIds), nil
}

func (self *CatalogApi) Close() {
	self.cancel()
}

// claims parsed out of the platform jwt, unverified.
// verification happens on the platform side.
type ByJwt struct {
	NetworkName string
	UserAuth    string
}

func ParseByJwtUnverified(byJwtStr string) (*ByJwt, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(byJwtStr, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := token.Claims.(gojwt.MapClaims)

	byJwt := &ByJwt{}

	if networkName, ok := claims["network_name"]; ok {
		if networkNameStr, ok := networkName.(string); ok {
			byJwt.NetworkName = networkNameStr
		}
	}
	if userAuth, ok := claims["user_auth"]; ok {
		if userAuthStr, ok := userAuth.(string); ok {
			byJwt.UserAuth = userAuthStr
		}
	}

	return byJwt, nil
}

func post[R any](ctx context.Context, url string, args any, byJwt string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

func get[R any](ctx context.Context, url string, byJwt string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	if byJwt != "" {
		auth := fmt.Sprintf("Bearer %s", byJwt)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}
