package httputil

import "github.com/gin-gonic/gin"

// IHttpHandler mounts one resource under Root on the public and debug API groups.
type IHttpHandler interface {
	Root() string
	SetRoutes(pub *gin.RouterGroup, debug *gin.RouterGroup)
}
