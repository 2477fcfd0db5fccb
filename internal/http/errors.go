package http

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/evm-quote-engine/internal/common"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/http/httputil"
)

// toHTTPError maps engine failures onto the HTTP surface.
func toHTTPError(err error) *common.HttpError {
	switch {
	case errors.Is(err, domain.ErrArithmeticInvalid), errors.Is(err, domain.ErrInvalidRoute):
		return common.HTTPErrorBadRequest(err.Error())
	case errors.Is(err, domain.ErrNoRoute):
		return common.HTTPErrorNotFound(err.Error())
	case errors.Is(err, domain.ErrAllRoutesUnavailable), errors.Is(err, domain.ErrRouteUnavailable):
		return common.HTTPErrorUnprocessable(err.Error())
	case errors.Is(err, domain.ErrOracleUnavailable):
		return common.HTTPErrorBadGateway(err.Error())
	default:
		return common.HTTPErrorInternalError(err.Error())
	}
}

func handleError(c *gin.Context, err error, data interface{}) {
	httputil.HTTPError(c, toHTTPError(err), data)
}
