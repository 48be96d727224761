package client

import (
	"errors"
	"net/http"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/pret/core/access"
	"github.com/relabs-tech/pret/core/response"
)

type item struct {
	Name string `json:"name"`
}

func newRouter() *mux.Router {
	registry := response.NewRegistry()
	registry.MustDeclare(response.Key("item", "list"), response.Standard(response.Options{
		IsPaginated: true,
		IsFiltered:  true, FilteringFields: []string{"name"},
	}))
	registry.MustDeclare(response.Key("item", "create"), response.Standard(response.Options{Status: http.StatusCreated}))
	registry.MustDeclare(response.Key("item", "whoami"), response.Raw(""))
	pipeline := response.New(&response.Builder{Registry: registry})

	all := []item{}
	for i := 0; i < 5; i++ {
		all = append(all, item{Name: strconv.Itoa(i)})
	}

	router := mux.NewRouter()
	pipeline.Handle(router, "/items", response.Key("item", "list"), func(r *http.Request, params *response.Params) (interface{}, error) {
		params.SetCount(len(all))
		p := params.PaginationInfo
		end := p.Offset + p.Limit
		if end > len(all) {
			end = len(all)
		}
		if p.Offset >= len(all) {
			return []item{}, nil
		}
		return all[p.Offset:end], nil
	}).Methods(http.MethodGet)
	pipeline.Handle(router, "/items", response.Key("item", "create"), func(r *http.Request, params *response.Params) (interface{}, error) {
		return item{Name: "new"}, nil
	}).Methods(http.MethodPost)
	pipeline.Handle(router, "/whoami", response.Key("item", "whoami"), func(r *http.Request, params *response.Params) (interface{}, error) {
		auth := access.AuthorizationFromContext(r.Context())
		if auth == nil {
			return nil, response.Unauthorized("no authorization")
		}
		return map[string]interface{}{"roles": auth.Roles, "header": r.Header.Get("X-Test")}, nil
	}).Methods(http.MethodGet)
	return router
}

func TestClientPaths(t *testing.T) {
	c := NewWithRouter(nil)
	collection := c.Collection("/user").WithFilter("email=@example", "name==john").WithFilter("roles==admin").WithSort("-date", "name")
	assert.Equal(t, "/user?filter=email%3D%40example%2Cname%3D%3Djohn%3Broles%3D%3Dadmin&sort=-date%2Cname", collection.Path())

	paged := collection.WithPage(20, 40)
	assert.Contains(t, paged.Path(), "limit=20&offset=40")
	assert.NotContains(t, collection.Path(), "limit", "collections are values")

	assert.Equal(t, "/user", c.Collection("/user").Path())
}

func TestClientRouter(t *testing.T) {
	c := NewWithRouter(newRouter())

	var items []item
	envelope, err := c.Collection("/items").WithPage(2, 0).List(&items)
	require.NoError(t, err)
	assert.True(t, envelope.Success)
	assert.True(t, envelope.IsPaginated)
	assert.Equal(t, 5, *envelope.Pagination.Count)
	assert.Equal(t, []item{{Name: "0"}, {Name: "1"}}, items)

	var created item
	status, err := c.RawPost("/items", item{Name: "x"}, &struct {
		Data *item `json:"data"`
	}{Data: &created})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "new", created.Name)

	var posted item
	envelope, err = c.Post("/items", item{Name: "y"}, &posted)
	require.NoError(t, err)
	assert.True(t, envelope.Success)
	assert.Equal(t, "new", posted.Name)

	status, err = c.RawGet("/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "no authorization", serr.Body.Message)

	var who map[string]interface{}
	_, err = c.WithAdminAuthorization().WithHeader("X-Test", "yes").RawGet("/whoami", &who)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"admin"}, who["roles"])
	assert.Equal(t, "yes", who["header"])

	res, err := c.Do(http.MethodGet, "/nowhere", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestClientPages(t *testing.T) {
	c := NewWithRouter(newRouter())
	var names []string
	pages := 0
	for page := c.Collection("/items").FirstPage(2); page.HasData(); page = page.Next() {
		var items []item
		_, err := page.Get(&items)
		require.NoError(t, err)
		for _, i := range items {
			names = append(names, i.Name)
		}
		assert.Equal(t, 5, page.TotalCount())
		pages++
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, names)
}
