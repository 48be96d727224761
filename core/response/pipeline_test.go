package response

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pret/core/query"
)

type item struct {
	Name string `json:"name"`
}

func serve(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestPipelineEnvelope(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclare(Key("item", "list"), Standard(Options{
		IsPaginated:   true,
		IsSorted:      true,
		SortingFields: []string{"name"},
	}))
	pipeline := New(&Builder{Registry: registry})

	router := mux.NewRouter()
	pipeline.Handle(router, "/items", Key("item", "list"), func(r *http.Request, params *Params) (interface{}, error) {
		params.SetCount(2)
		return []item{{Name: "b"}, {Name: "a"}}, nil
	})

	rec := serve(t, router, "/items?sort=-name")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		`{"success":true,"isArray":true,"isPaginated":true,`+
			`"pagination":{"limit":10,"offset":0,"count":2,"minPageSize":1,"defaultPageSize":10,"query":"limit=10&offset=0"},`+
			`"isSorted":true,"sorting":{"sortingFields":["name"],"sort":[{"field":"name","order":"DESC"}],"query":"-name"},`+
			`"data":[{"name":"b"},{"name":"a"}]}`,
		rec.Body.String())
}

func TestPipelineFiltering(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclare(Key("item", "list"), Standard(Options{IsFiltered: true, FilteringFields: []string{"name"}}))
	pipeline := New(&Builder{Registry: registry})

	var seen query.Filter
	handler := pipeline.Handler(Key("item", "list"), func(r *http.Request, params *Params) (interface{}, error) {
		seen = params.FilteringInfo.Filter
		return []item{}, nil
	})

	rec := serve(t, handler, "/items?filter=name==john,name=@doe")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, seen.AllOf, 1)
	assert.Len(t, seen.AllOf[0].AnyOf, 2)
	assert.Equal(t,
		`{"success":true,"isArray":true,"isFiltered":true,"filtering":{"filteringFields":["name"],`+
			`"filter":{"allOf":[{"anyOf":[{"field":"name","operation":"==","value":"john"},{"field":"name","operation":"=@","value":"doe"}]}]},`+
			`"query":"name==john,name=@doe"},"data":[]}`,
		rec.Body.String())
}

func TestPipelineObject(t *testing.T) {
	registry := NewRegistry()
	pipeline := New(&Builder{Registry: registry})

	handler := pipeline.Handler(Key("item", "read"), func(r *http.Request, params *Params) (interface{}, error) {
		params.SetMessage("found it")
		return item{Name: "a"}, nil
	})
	rec := serve(t, handler, "/items/a")
	assert.Equal(t, `{"success":true,"message":"found it","data":{"name":"a"}}`, rec.Body.String())
}

func TestPipelineNilSlice(t *testing.T) {
	pipeline := New(&Builder{Registry: NewRegistry()})
	handler := pipeline.Handler(Key("item", "list"), func(r *http.Request, params *Params) (interface{}, error) {
		var items []item
		return items, nil
	})
	rec := serve(t, handler, "/items")
	assert.Equal(t, `{"success":true,"isArray":true,"data":[]}`, rec.Body.String())
}

func TestPipelineRaw(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclare(Key("health", "get"), Raw("health check"))
	registry.MustDeclare(Key("health", "empty"), Raw(""))
	pipeline := New(&Builder{Registry: registry})

	handler := pipeline.Handler(Key("health", "get"), func(r *http.Request, params *Params) (interface{}, error) {
		return map[string]string{"status": "ok"}, nil
	})
	rec := serve(t, handler, "/health")
	assert.Equal(t, `{"status":"ok"}`, rec.Body.String())

	handler = pipeline.Handler(Key("health", "empty"), func(r *http.Request, params *Params) (interface{}, error) {
		return nil, nil
	})
	rec = serve(t, handler, "/health")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPipelineBypass(t *testing.T) {
	registry := NewRegistry()
	registry.InterceptAll = false
	pipeline := New(&Builder{Registry: registry})

	handler := pipeline.Handler(Key("legacy", "get"), func(r *http.Request, params *Params) (interface{}, error) {
		route := RouteFromContext(r.Context())
		assert.False(t, route.Intercept)
		return []int{1, 2}, nil
	})
	rec := serve(t, handler, "/legacy")
	assert.Equal(t, `[1,2]`, rec.Body.String())
}

func TestPipelineStatus(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclare(Key("item", "create"), Standard(Options{Status: http.StatusCreated}))
	pipeline := New(&Builder{Registry: registry})
	handler := pipeline.Handler(Key("item", "create"), func(r *http.Request, params *Params) (interface{}, error) {
		return item{Name: "new"}, nil
	})
	rec := serve(t, handler, "/items")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestPipelineQueryError(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclare(Key("item", "list"), Standard(Options{IsPaginated: true, IsSorted: true, SortingFields: []string{"name"}}))
	pipeline := New(&Builder{Registry: registry})

	called := false
	handler := pipeline.Handler(Key("item", "list"), func(r *http.Request, params *Params) (interface{}, error) {
		called = true
		return nil, nil
	})
	rec := serve(t, handler, "/items?limit=abc&sort=password")
	assert.False(t, called)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Success    bool               `json:"success"`
		StatusCode int                `json:"statusCode"`
		Details    []query.FieldError `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, http.StatusBadRequest, body.StatusCode)
	assert.Len(t, body.Details, 2)
}

func TestPipelineHandlerErrors(t *testing.T) {
	pipeline := New(&Builder{Registry: NewRegistry()})

	handler := pipeline.Handler(Key("item", "read"), func(r *http.Request, params *Params) (interface{}, error) {
		return nil, NotFound("no such item")
	})
	rec := serve(t, handler, "/items/x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `{"success":false,"statusCode":404,"message":"no such item","error":"Not Found"}`, rec.Body.String())

	handler = pipeline.Handler(Key("item", "write"), func(r *http.Request, params *Params) (interface{}, error) {
		return nil, errors.New("database password is hunter2")
	})
	rec = serve(t, handler, "/items/x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "hunter2")

	// an error value is not wrapped in an envelope
	handler = pipeline.Handler(Key("item", "value"), func(r *http.Request, params *Params) (interface{}, error) {
		return Conflict("exists"), nil
	})
	rec = serve(t, handler, "/items/x")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"success":true`)
}

func TestPipelineInterceptors(t *testing.T) {
	var order []string
	first := InterceptorFunc(func(r *http.Request, value interface{}) (interface{}, error) {
		order = append(order, "first")
		_, wrapped := value.(*Envelope)
		assert.True(t, wrapped)
		return value, nil
	})
	failing := InterceptorFunc(func(r *http.Request, value interface{}) (interface{}, error) {
		order = append(order, "failing")
		return nil, &Error{Status: http.StatusInternalServerError, Message: "Invalid return DTO"}
	})
	pipeline := New(&Builder{Registry: NewRegistry(), Interceptors: []Interceptor{StandardResponse(), first, failing}})
	handler := pipeline.Handler(Key("item", "read"), func(r *http.Request, params *Params) (interface{}, error) {
		return item{Name: "a"}, nil
	})
	rec := serve(t, handler, "/items/a")
	assert.Equal(t, []string{"first", "failing"}, order)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid return DTO")
}

func TestPipelineAborted(t *testing.T) {
	intercepted := false
	spy := InterceptorFunc(func(r *http.Request, value interface{}) (interface{}, error) {
		intercepted = true
		return value, nil
	})
	pipeline := New(&Builder{Registry: NewRegistry(), Interceptors: []Interceptor{spy}})

	ctx, cancel := context.WithCancel(context.Background())
	handler := pipeline.Handler(Key("item", "slow"), func(r *http.Request, params *Params) (interface{}, error) {
		cancel()
		return item{Name: "late"}, nil
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items", nil).WithContext(ctx))
	assert.False(t, intercepted)
	assert.Empty(t, rec.Body.String())
}

func TestParamsIsolation(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclare(Key("item", "list"), Standard(Options{IsPaginated: true}))
	pipeline := New(&Builder{Registry: registry})

	handler := pipeline.Handler(Key("item", "list"), func(r *http.Request, params *Params) (interface{}, error) {
		if r.URL.Query().Get("count") != "" {
			params.SetCount(99)
		}
		assert.Same(t, params, ParamsFromContext(r.Context()))
		return []item{}, nil
	})
	rec := serve(t, handler, "/items?count=1")
	assert.Contains(t, rec.Body.String(), `"count":99`)
	rec = serve(t, handler, "/items")
	assert.NotContains(t, rec.Body.String(), `"count"`)
}

func TestSetters(t *testing.T) {
	params := &Params{PaginationInfo: query.PaginationInfo{Limit: 10, Offset: 20, Query: "limit=10&offset=20"}}
	limit := 5
	params.SetPaginationInfo(PaginationPatch{Limit: &limit})
	assert.Equal(t, 5, params.PaginationInfo.Limit)
	assert.Equal(t, 20, params.PaginationInfo.Offset)
	assert.Equal(t, "limit=10&offset=20", params.PaginationInfo.Query)
	assert.Nil(t, params.PaginationInfo.Count)

	params.SetSortingInfo(SortingPatch{Sort: []query.SortField{{Field: "a", Order: query.OrderAsc}}})
	assert.Len(t, params.SortingInfo.Sort, 1)
	params.SetSortingInfo(SortingPatch{SortingFields: []string{"a"}})
	assert.Len(t, params.SortingInfo.Sort, 1)

	filter := query.Filter{AllOf: []query.AnyOf{}}
	params.SetFilteringInfo(FilteringPatch{Filter: &filter})
	assert.NotNil(t, params.FilteringInfo.Filter.AllOf)
}

func TestPipelineBookList(t *testing.T) {
	registry := NewRegistry()
	registry.MustDeclare(Key("book", "list"), Standard(Options{
		IsPaginated:     true,
		MinPageSize:     5,
		MaxPageSize:     20,
		DefaultPageSize: 12,
		IsFiltered:      true,
		FilteringFields: []string{"author", "year"},
	}))
	pipeline := New(&Builder{Registry: registry})
	list := pipeline.Handler(Key("book", "list"), func(r *http.Request, params *Params) (interface{}, error) {
		return []item{}, nil
	})
	read := pipeline.Handler(Key("book", "read"), func(r *http.Request, params *Params) (interface{}, error) {
		return item{Name: "a"}, nil
	})

	type envelope struct {
		IsArray    bool                 `json:"isArray"`
		Pagination query.PaginationInfo `json:"pagination"`
		Filtering  query.FilteringInfo  `json:"filtering"`
	}

	var defaults envelope
	rec := serve(t, list, "/books")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defaults))
	assert.True(t, defaults.IsArray)
	assert.Equal(t, 12, defaults.Pagination.Limit)
	assert.Equal(t, 0, defaults.Pagination.Offset)

	var filtered envelope
	rec = serve(t, list, "/books?filter="+url.QueryEscape("author==John,author==Jake;year>=1890,year<=2000"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &filtered))
	require.Len(t, filtered.Filtering.Filter.AllOf, 2)
	require.Len(t, filtered.Filtering.Filter.AllOf[0].AnyOf, 2)
	assert.Equal(t, query.Condition{Field: "author", Operation: query.OpEquals, Value: "John"}, filtered.Filtering.Filter.AllOf[0].AnyOf[0])
	assert.Len(t, filtered.Filtering.Filter.AllOf[1].AnyOf, 2)

	rec = serve(t, read, "/books/a")
	assert.Equal(t, `{"success":true,"data":{"name":"a"}}`, rec.Body.String())
}
