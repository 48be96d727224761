// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package client provides easy and fast in-process access to a REST api

Instead of marshalling HTTP, the client talks directly to the mux router. The client
is the tool of choice if one request handler needs to call other handlers to fulfill
its task. It is also perfectly suited for unit tests.

The same client can talk to a remote server with NewWithURL.
*/
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/relabs-tech/pret/core/access"
	"github.com/relabs-tech/pret/core/query"
)

// Client provides easy access to the REST API.
type Client struct {
	handler    http.Handler
	httpClient *http.Client
	url        string
	token      string
	auth       *access.Authorization
	ctx        context.Context

	defaultHeaders map[string]string
}

// NewWithRouter creates a client to make pseudo-REST requests to the backend,
// through the router
//
// WithAuthorization() adds an authorization to the request context.
// WithContext() specifies a different base context all together.
func NewWithRouter(router http.Handler) Client {
	return Client{
		handler:        router,
		defaultHeaders: map[string]string{},
	}
}

// NewWithURL creates a client to make REST requests to the backend
//
// WithToken adds an authorization token to the request header.
func NewWithURL(url string) Client {
	return Client{
		url:            strings.TrimSuffix(url, "/"),
		httpClient:     &http.Client{Timeout: 20 * time.Second},
		defaultHeaders: map[string]string{},
	}
}

// WithHeader returns a new client with a default header added
func (c Client) WithHeader(key string, value string) Client {
	headers := map[string]string{key: value}
	for k, v := range c.defaultHeaders {
		if k != key {
			headers[k] = v
		}
	}
	c.defaultHeaders = headers
	return c
}

// WithToken returns a new client which sends token as bearer token. Unlike
// WithAuthorization, the token runs through the JWT middleware, so it works
// both in-process and remote.
func (c Client) WithToken(token string) Client {
	c.token = token
	return c
}

// WithAdminAuthorization returns a new client with admin authorizations
// (this works only directly against the router, for a normal client
// use WithToken())
func (c Client) WithAdminAuthorization() Client {
	return c.WithRole(access.RoleAdmin)
}

// WithRole returns a new client with role authorization
// (this works only directly against the router, for a normal client
// use WithToken())
func (c Client) WithRole(role string) Client {
	c.auth = &access.Authorization{
		Roles: []string{role},
	}
	return c
}

// WithAuthorization returns a new client with specific authorizations
// (this works only directly against the router, for a normal client
// use WithToken())
func (c Client) WithAuthorization(auth *access.Authorization) Client {
	c.auth = auth
	return c
}

// WithContext returns a new client with specific request context
func (c Client) WithContext(ctx context.Context) Client {
	c.ctx = ctx
	return c
}

// Context returns the request context including the authorization
func (c Client) Context() context.Context {
	ctx := c.ctx
	if c.ctx == nil {
		ctx = context.Background()
	}
	if c.auth != nil {
		ctx = access.ContextWithAuthorization(ctx, c.auth)
	}
	return ctx
}

// Response is a received response
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the body into result. result can also be a raw *[]byte.
func (r *Response) Decode(result interface{}) error {
	if result == nil || len(r.Body) == 0 {
		return nil
	}
	if raw, ok := result.(*[]byte); ok {
		*raw = r.Body
		return nil
	}
	return json.Unmarshal(r.Body, result)
}

// Envelope is the standard response shape with undecoded data
type Envelope struct {
	Success     bool                  `json:"success"`
	IsArray     bool                  `json:"isArray"`
	IsPaginated bool                  `json:"isPaginated"`
	Pagination  *query.PaginationInfo `json:"pagination"`
	IsSorted    bool                  `json:"isSorted"`
	Sorting     *query.SortingInfo    `json:"sorting"`
	IsFiltered  bool                  `json:"isFiltered"`
	Filtering   *query.FilteringInfo  `json:"filtering"`
	Message     string                `json:"message"`
	Data        json.RawMessage       `json:"data"`
}

// ErrorBody is the body of a failed request
type ErrorBody struct {
	Success    bool            `json:"success"`
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Error      string          `json:"error"`
	Details    json.RawMessage `json:"details"`
}

// StatusError is returned when the server answered with an unexpected status
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   ErrorBody
	Raw    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Raw)
}

// Do sends a request and returns the response regardless of its status.
//
// body can also be a []byte. A nil body sends no body.
func (c Client) Do(method, path string, body interface{}) (*Response, error) {
	var reader io.Reader
	if body != nil {
		j, ok := body.([]byte)
		if !ok {
			var err error
			if j, err = json.Marshal(body); err != nil {
				return nil, fmt.Errorf("%s to %s: %w", method, path, err)
			}
		}
		reader = bytes.NewReader(j)
	}

	r, err := http.NewRequestWithContext(c.Context(), method, c.url+path, reader)
	if err != nil {
		return nil, err
	}
	if reader != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.defaultHeaders {
		r.Header.Add(key, value)
	}
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.handler != nil {
		rec := httptest.NewRecorder()
		c.handler.ServeHTTP(rec, r)
		res := rec.Result()
		return &Response{Status: res.StatusCode, Header: res.Header, Body: rec.Body.Bytes()}, nil
	}

	res, err := c.httpClient.Do(r)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: res.StatusCode, Header: res.Header, Body: resBody}, nil
}

func (c Client) expect(method, path string, body, result interface{}, statuses ...int) (int, error) {
	res, err := c.Do(method, path, body)
	if err != nil {
		return http.StatusInternalServerError, err
	}
	for _, status := range statuses {
		if res.Status == status {
			return res.Status, res.Decode(result)
		}
	}
	serr := &StatusError{Method: method, Path: path, Status: res.Status, Raw: strings.TrimSpace(string(res.Body))}
	_ = json.Unmarshal(res.Body, &serr.Body)
	return res.Status, serr
}

// RawGet gets the resource from path. Expects http.StatusOK or http.StatusNoContent
// as response, otherwise it will flag a *StatusError. Returns the actual http status code.
//
// The path can be extend with query strings.
//
// result can be map[string]interface{} or a raw *[]byte.
// result can be nil.
func (c Client) RawGet(path string, result interface{}) (int, error) {
	return c.expect(http.MethodGet, path, nil, result, http.StatusOK, http.StatusNoContent)
}

// RawPost posts a resource to path. Expects http.StatusCreated or http.StatusOK as response,
// otherwise it will flag a *StatusError. Returns the actual http status code.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPost(path string, body interface{}, result interface{}) (int, error) {
	return c.expect(http.MethodPost, path, body, result, http.StatusCreated, http.StatusOK)
}

// RawPatch patches a resource at path. Expects http.StatusOK as response, otherwise it will
// flag a *StatusError.
//
// body can also be a []byte, result can also be raw *[]byte.
// result can be nil.
func (c Client) RawPatch(path string, body interface{}, result interface{}) (int, error) {
	return c.expect(http.MethodPatch, path, body, result, http.StatusOK, http.StatusNoContent)
}

// RawDelete deletes the resource at path. Expects http.StatusOK or http.StatusNoContent
// as response, otherwise it will flag a *StatusError.
func (c Client) RawDelete(path string) (int, error) {
	return c.expect(http.MethodDelete, path, nil, nil, http.StatusOK, http.StatusNoContent)
}

// Get reads a standard response and decodes its data into result
func (c Client) Get(path string, result interface{}) (*Envelope, error) {
	var envelope Envelope
	if _, err := c.RawGet(path, &envelope); err != nil {
		return nil, err
	}
	return envelope.decode(result)
}

// Post posts body to path and decodes the data of the standard response into result
func (c Client) Post(path string, body interface{}, result interface{}) (*Envelope, error) {
	var envelope Envelope
	if _, err := c.RawPost(path, body, &envelope); err != nil {
		return nil, err
	}
	return envelope.decode(result)
}

// Patch patches path with body and decodes the data of the standard response into result
func (c Client) Patch(path string, body interface{}, result interface{}) (*Envelope, error) {
	var envelope Envelope
	if _, err := c.RawPatch(path, body, &envelope); err != nil {
		return nil, err
	}
	return envelope.decode(result)
}

func (e *Envelope) decode(result interface{}) (*Envelope, error) {
	if result != nil && len(e.Data) > 0 {
		if err := json.Unmarshal(e.Data, result); err != nil {
			return e, err
		}
	}
	return e, nil
}

// Collection addresses a list endpoint and builds its query string
type Collection struct {
	client     Client
	path       string
	parameters url.Values
}

// Collection returns a new collection client for path
func (c Client) Collection(path string) Collection {
	return Collection{client: c, path: path, parameters: url.Values{}}
}

func (r Collection) with(key string, value string, add bool) Collection {
	parameters := url.Values{}
	for k, v := range r.parameters {
		parameters[k] = append([]string{}, v...)
	}
	if add {
		parameters.Add(key, value)
	} else {
		parameters.Set(key, value)
	}
	r.parameters = parameters
	return r
}

// WithParameter returns a new collection client with a URL parameter added.
func (r Collection) WithParameter(key string, value string) Collection {
	return r.with(key, value, true)
}

// WithFilter returns a new collection client with a filter clause added.
// Conditions of one call are alternatives, separate calls must all match.
func (r Collection) WithFilter(conditions ...string) Collection {
	clause := strings.Join(conditions, ",")
	if existing := r.parameters.Get(query.ParamFilter); existing != "" {
		clause = existing + ";" + clause
	}
	return r.with(query.ParamFilter, clause, false)
}

// WithSort returns a new collection client sorted by fields, "-name" sorts descending
func (r Collection) WithSort(fields ...string) Collection {
	return r.with(query.ParamSort, strings.Join(fields, ","), false)
}

// WithPage returns a new collection client requesting one page
func (r Collection) WithPage(limit, offset int) Collection {
	return r.with(query.ParamLimit, strconv.Itoa(limit), false).
		with(query.ParamOffset, strconv.Itoa(offset), false)
}

// Path returns the path plus query string
func (r Collection) Path() string {
	if len(r.parameters) == 0 {
		return r.path
	}
	return r.path + "?" + r.parameters.Encode()
}

// List gets the collection and decodes the data into result
func (r Collection) List(result interface{}) (*Envelope, error) {
	return r.client.Get(r.Path(), result)
}

// Page is a requester for one page of a paginated collection
type Page struct {
	r      Collection
	limit  int
	offset int
	count  *int
	last   bool
}

// FirstPage returns a requester for the first page of a collection
//
// Do not specify limit or offset on the collection when using the page
// requester, as it manages them itself.
func (r Collection) FirstPage(limit int) Page {
	return Page{r: r, limit: limit}
}

// HasData returns true if the page may have data (by definition true for the first page)
func (p Page) HasData() bool {
	if p.count != nil {
		return p.offset < *p.count
	}
	return !p.last
}

// TotalCount returns the total number of elements, or -1 if the server did not report it
// (only available after you have called Get on the page)
func (p Page) TotalCount() int {
	if p.count == nil {
		return -1
	}
	return *p.count
}

// Get gets one page of the collection
func (p *Page) Get(result interface{}) (*Envelope, error) {
	envelope, err := p.r.WithPage(p.limit, p.offset).List(result)
	if err != nil {
		return envelope, err
	}
	if envelope.Pagination != nil {
		p.limit = envelope.Pagination.Limit
		p.count = envelope.Pagination.Count
	}
	var items []json.RawMessage
	if err := json.Unmarshal(envelope.Data, &items); err == nil {
		p.last = len(items) < p.limit
	}
	return envelope, nil
}

// Next returns the next page
func (p Page) Next() Page {
	return Page{
		r:      p.r,
		limit:  p.limit,
		offset: p.offset + p.limit,
		count:  p.count,
		last:   p.last,
	}
}
