package httputil

import "github.com/gin-gonic/gin"

// IHttpHandler mounts one resource under the versioned API group.
type IHttpHandler interface {
	Root() string
	SetRoutes(pub *gin.RouterGroup)
}
