package router

import (
	"github.com/gin-gonic/gin"
)

// APIPrefix is where versioned routes are mounted.
const APIPrefix = "/api/v1"

// Route binds one method and path, relative to its group, to a handler.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// Group is a prefix with its routes and the middleware that guards them.
// Nested groups inherit the middleware.
type Group struct {
	Prefix     string
	Middleware []gin.HandlerFunc
	Routes     []Route
	Groups     []Group
}

// Mount registers g and its nested groups under rg.
func Mount(rg *gin.RouterGroup, g Group) {
	sub := rg.Group(g.Prefix, g.Middleware...)
	for _, rt := range g.Routes {
		sub.Handle(rt.Method, rt.Path, rt.Handler)
	}
	for _, child := range g.Groups {
		Mount(sub, child)
	}
}

// RouteInfo describes one route as served by the engine.
type RouteInfo struct {
	Method string
	Path   string
}

func Routes(engine *gin.Engine) []RouteInfo {
	routes := engine.Routes()
	out := make([]RouteInfo, len(routes))
	for i, rt := range routes {
		out[i] = RouteInfo{Method: rt.Method, Path: rt.Path}
	}
	return out
}
