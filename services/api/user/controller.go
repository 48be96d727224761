// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package user

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/pret/core/access"
	"github.com/relabs-tech/pret/core/logger"
	"github.com/relabs-tech/pret/core/response"
	"github.com/relabs-tech/pret/core/schema"
	"github.com/relabs-tech/pret/services/api/schemas"
)

// Route keys of the user controller
var (
	RouteList   = response.Key(Subject, "list")
	RouteCreate = response.Key(Subject, "create")
	RouteRead   = response.Key(Subject, "read")
	RouteUpdate = response.Key(Subject, "update")
	RouteDelete = response.Key(Subject, "delete")
)

// Controller is the REST interface for users
type Controller struct {
	service   *Service
	pipeline  *response.Pipeline
	validator *schema.Validator
	abilities access.AbilityFactory
}

// ControllerBuilder is a builder helper for the user controller
type ControllerBuilder struct {
	// Service is mandatory
	Service *Service
	// Pipeline is mandatory. Its registry must not be sealed yet.
	Pipeline *response.Pipeline
	// Validator must know the schemas of package schemas. Mandatory.
	Validator *schema.Validator
	// Abilities defaults to Abilities
	Abilities access.AbilityFactory
}

// NewController declares the response metadata of the user routes. Call
// HandleRoutes after all controllers are declared.
func NewController(b *ControllerBuilder) *Controller {
	if b.Service == nil || b.Pipeline == nil || b.Validator == nil {
		panic("user controller needs service, pipeline and validator")
	}
	c := &Controller{service: b.Service, pipeline: b.Pipeline, validator: b.Validator, abilities: b.Abilities}
	if c.abilities == nil {
		c.abilities = Abilities
	}

	registry := b.Pipeline.Registry()
	registry.MustDeclare(RouteList, response.Standard(response.Options{
		Description:     "The list of users",
		IsPaginated:     true,
		MinPageSize:     5,
		MaxPageSize:     100,
		DefaultPageSize: 20,
		IsSorted:        true,
		SortingFields:   SortingFields,
		IsFiltered:      true,
		FilteringFields: FilteringFields,
	}))
	registry.MustDeclare(RouteCreate, response.Standard(response.Options{Description: "User created successfully", Status: http.StatusCreated}))
	registry.MustDeclare(RouteRead, response.Standard(response.Options{Description: "User found"}))
	registry.MustDeclare(RouteUpdate, response.Standard(response.Options{Description: "User updated successfully"}))
	registry.MustDeclare(RouteDelete, response.Standard(response.Options{Description: "User deleted successfully"}))
	return c
}

// HandleRoutes adds the user routes to router. Every route requires an authorization.
func (c *Controller) HandleRoutes(router *mux.Router) {
	rlog := logger.Default()
	rlog.Debugln("user: handle route /user GET,POST")
	rlog.Debugln("user: handle route /user/{idOrEmail} GET,PATCH,DELETE")

	handle := func(path, method string, key response.RouteKey, action access.Action, handler response.HandlerFunc) {
		policies := access.CheckPolicies(c.abilities, Can(action))
		router.Handle(path, policies(c.pipeline.Handler(key, handler))).Methods(method)
	}
	handle("/user", http.MethodGet, RouteList, access.ActionList, c.list)
	handle("/user", http.MethodPost, RouteCreate, access.ActionCreate, c.create)
	handle("/user/{idOrEmail}", http.MethodGet, RouteRead, access.ActionRead, c.read)
	handle("/user/{idOrEmail}", http.MethodPatch, RouteUpdate, access.ActionUpdate, c.update)
	handle("/user/{idOrEmail}", http.MethodDelete, RouteDelete, access.ActionDelete, c.delete)
}

func (c *Controller) list(r *http.Request, params *response.Params) (interface{}, error) {
	users, count, err := c.service.List(r.Context(), ListQuery{
		Limit:  params.PaginationInfo.Limit,
		Offset: params.PaginationInfo.Offset,
		Sort:   params.SortingInfo.Sort,
		Filter: params.FilteringInfo.Filter,
	})
	if err != nil {
		return nil, err
	}
	params.SetCount(count)
	return users, nil
}

func (c *Controller) create(r *http.Request, params *response.Params) (interface{}, error) {
	var req CreateRequest
	if err := c.validator.Decode(r, schemas.UserCreate, &req); err != nil {
		return nil, err
	}
	return c.service.Create(r.Context(), &req)
}

func (c *Controller) read(r *http.Request, params *response.Params) (interface{}, error) {
	u, err := c.service.Find(r.Context(), mux.Vars(r)["idOrEmail"])
	if err != nil {
		return nil, err
	}
	if !access.AbilityFromContext(r).Can(access.ActionRead, Subject, u) {
		return nil, response.Forbidden("Forbidden")
	}
	return u, nil
}

func (c *Controller) update(r *http.Request, params *response.Params) (interface{}, error) {
	var req UpdateRequest
	if err := c.validator.Decode(r, schemas.UserUpdate, &req); err != nil {
		return nil, err
	}
	u, err := c.service.Find(r.Context(), mux.Vars(r)["idOrEmail"])
	if err != nil {
		return nil, err
	}
	if !access.AbilityFromContext(r).Can(access.ActionUpdate, Subject, u) {
		return nil, response.Forbidden("Forbidden")
	}
	if req.Roles != nil && !access.AuthorizationFromContext(r.Context()).HasRole(access.RoleAdmin) {
		return nil, response.Forbidden(MessageRolesRequireAdmin)
	}
	return c.service.Update(r.Context(), u.ID.String(), &req)
}

func (c *Controller) delete(r *http.Request, params *response.Params) (interface{}, error) {
	u, err := c.service.Find(r.Context(), mux.Vars(r)["idOrEmail"])
	if err != nil {
		return nil, err
	}
	if !access.AbilityFromContext(r).Can(access.ActionDelete, Subject, u) {
		return nil, response.Forbidden("Forbidden")
	}
	if err = c.service.Delete(r.Context(), u.ID.String()); err != nil {
		return nil, err
	}
	return map[string]interface{}{}, nil
}
