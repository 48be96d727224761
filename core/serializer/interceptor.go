// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

package serializer

import (
	"errors"
	"net/http"

	"github.com/relabs-tech/pret/core/access"
	"github.com/relabs-tech/pret/core/logger"
	"github.com/relabs-tech/pret/core/response"
)

// Interceptor returns the response interceptor which serializes results
// for the roles of the request's authorization. Requests without
// authorization see only fields without role restriction.
//
// It runs after response.StandardResponse(), so it sees envelopes as well as
// raw results. Error values pass through.
func Interceptor() response.Interceptor {
	return response.InterceptorFunc(func(r *http.Request, value interface{}) (interface{}, error) {
		if _, ok := value.(error); ok {
			return value, nil
		}
		auth := access.AuthorizationFromContext(r.Context())
		out, err := Serialize(value, auth.RoleList())
		if err != nil {
			rlog := logger.Component(r.Context(), "RolesSerializerInterceptor")
			var se *SafetyError
			if errors.As(err, &se) {
				rlog.Errorf("refusing to serialize persistence document %s at %s, return a model instead", se.Type, se.Path)
				return nil, err
			}
			rlog.WithError(err).Errorln("cannot serialize response")
			return nil, response.Internal(err)
		}
		return out, nil
	})
}
