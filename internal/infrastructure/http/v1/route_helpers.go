package v1

import (
	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/http/v1/middleware"
)

// RouteRegistrar is implemented by handlers that mount their own endpoints.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Mount registers handler under path. A non-empty permission is required for
// every route of the group.
//
// Usage:
//
//	handler := handlers.NewPurchaseHandler(base, cfg.Purchases)
//	Mount(api, "/purchases", handler, "purchases.access")
func Mount(rg *gin.RouterGroup, path string, handler RouteRegistrar, permission string) {
	group := rg.Group(path)
	if permission != "" {
		group.Use(middleware.RequirePermission(permission))
	}
	handler.RegisterRoutes(group)
}
