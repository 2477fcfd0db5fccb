package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/evm-quote-engine/internal/common"
)

// Response is the envelope every API endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

func HandleSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// HTTPError writes e, attaching data when the failure still produced a usable body.
func HTTPError(c *gin.Context, e *common.HttpError, data interface{}) {
	c.JSON(e.StatusCode, Response{
		Success: false,
		Data:    data,
		Error:   e.Message,
		Code:    e.Code,
	})
}

func HandleBadRequest(c *gin.Context, err string) {
	HTTPError(c, common.HTTPErrorBadRequest(err), nil)
}

func HandleNotFound(c *gin.Context, err string) {
	HTTPError(c, common.HTTPErrorNotFound(err), nil)
}
