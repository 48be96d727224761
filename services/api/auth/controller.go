// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package auth

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/relabs-tech/pret/core/logger"
	"github.com/relabs-tech/pret/core/response"
	"github.com/relabs-tech/pret/core/schema"
	"github.com/relabs-tech/pret/services/api/schemas"
	"github.com/relabs-tech/pret/services/api/user"
)

// Controller is the name of the auth controller in the response registry
const Controller = "auth"

// Route keys of the auth controller
var (
	RouteLogin          = response.Key(Controller, "login")
	RouteRegister       = response.Key(Controller, "register")
	RouteVerify         = response.Key(Controller, "verify")
	RouteResend         = response.Key(Controller, "resend-verification")
	RouteForgotPassword = response.Key(Controller, "forgot-password")
	RouteResetPassword  = response.Key(Controller, "reset-password")
)

// RESTController is the REST interface for authentication
type RESTController struct {
	service   *Service
	pipeline  *response.Pipeline
	validator *schema.Validator
}

// ControllerBuilder is a builder helper for the auth controller
type ControllerBuilder struct {
	// Service is mandatory
	Service *Service
	// Pipeline is mandatory. Its registry must not be sealed yet.
	Pipeline *response.Pipeline
	// Validator must know the schemas of package schemas. Mandatory.
	Validator *schema.Validator
}

// NewController declares the response metadata of the auth routes
func NewController(b *ControllerBuilder) *RESTController {
	if b.Service == nil || b.Pipeline == nil || b.Validator == nil {
		panic("auth controller needs service, pipeline and validator")
	}
	b.Pipeline.Registry().MustDeclareController(Controller, response.Standard(response.Options{
		Description: "authentication",
	}))
	return &RESTController{service: b.Service, pipeline: b.Pipeline, validator: b.Validator}
}

// HandleRoutes adds the auth routes to router. Typically router is a
// subrouter with its own throttle.
func (c *RESTController) HandleRoutes(router *mux.Router) {
	logger.Default().Debugln("auth: handle routes /auth/email/*")

	c.pipeline.Handle(router, "/auth/email/login", RouteLogin, c.login).Methods(http.MethodPost)
	c.pipeline.Handle(router, "/auth/email/register", RouteRegister, c.register).Methods(http.MethodPost)
	c.pipeline.Handle(router, "/auth/email/verify/{token}", RouteVerify, c.verify).Methods(http.MethodGet)
	c.pipeline.Handle(router, "/auth/email/resend-verification/{email}", RouteResend, c.resend).Methods(http.MethodPost)
	c.pipeline.Handle(router, "/auth/email/forgot-password/{email}", RouteForgotPassword, c.forgotPassword).Methods(http.MethodPost)
	c.pipeline.Handle(router, "/auth/email/reset-password", RouteResetPassword, c.resetPassword).Methods(http.MethodPost)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	Email              string `json:"email"`
	Password           string `json:"password"`
	CurrentPassword    string `json:"currentPassword"`
	ResetPasswordToken string `json:"resetPasswordToken"`
}

func emailParam(r *http.Request) (string, error) {
	email := mux.Vars(r)["email"]
	if !user.IsEmail(email) {
		return "", response.BadRequest("Invalid email")
	}
	return email, nil
}

func (c *RESTController) login(r *http.Request, params *response.Params) (interface{}, error) {
	var req loginRequest
	if err := c.validator.Decode(r, schemas.Login, &req); err != nil {
		return nil, err
	}
	return c.service.Login(r.Context(), req.Email, req.Password)
}

func (c *RESTController) register(r *http.Request, params *response.Params) (interface{}, error) {
	var req user.CreateRequest
	if err := c.validator.Decode(r, schemas.Register, &req); err != nil {
		return nil, err
	}
	result, message, err := c.service.Register(r.Context(), &req)
	if err != nil {
		return nil, err
	}
	params.SetMessage(message)
	return result, nil
}

func (c *RESTController) verify(r *http.Request, params *response.Params) (interface{}, error) {
	if err := c.service.VerifyEmail(r.Context(), mux.Vars(r)["token"]); err != nil {
		return nil, err
	}
	params.SetMessage(MessageEmailVerified)
	return map[string]interface{}{}, nil
}

func (c *RESTController) resend(r *http.Request, params *response.Params) (interface{}, error) {
	email, err := emailParam(r)
	if err != nil {
		return nil, err
	}
	if err = c.service.SendEmailVerification(r.Context(), email); err != nil {
		return nil, err
	}
	params.SetMessage(MessageResent)
	return map[string]interface{}{}, nil
}

func (c *RESTController) forgotPassword(r *http.Request, params *response.Params) (interface{}, error) {
	email, err := emailParam(r)
	if err != nil {
		return nil, err
	}
	if err = c.service.SendForgotPassword(r.Context(), email); err != nil {
		return nil, err
	}
	params.SetMessage(MessageForgotSent)
	return map[string]interface{}{}, nil
}

func (c *RESTController) resetPassword(r *http.Request, params *response.Params) (interface{}, error) {
	var req resetPasswordRequest
	if err := c.validator.Decode(r, schemas.ResetPassword, &req); err != nil {
		return nil, err
	}
	var err error
	switch {
	case req.ResetPasswordToken != "":
		err = c.service.ResetPasswordFromToken(r.Context(), req.ResetPasswordToken, req.Password)
	case req.CurrentPassword != "":
		err = c.service.ResetPasswordFromCurrentPassword(r.Context(), req.Email, req.CurrentPassword, req.Password)
	default:
		err = response.BadRequest(MessagePasswordNotChanged)
	}
	if err != nil {
		return nil, err
	}
	params.SetMessage(MessageResetSuccess)
	return map[string]interface{}{}, nil
}
