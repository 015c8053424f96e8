package router

import (
	"net/http"

	"github.com/bundlesync/engine/internal/interfaces/http/handler"
	"github.com/gin-gonic/gin"
)

// Handlers gathers the HTTP handlers the engine exposes. A nil handler
// leaves its routes unregistered.
type Handlers struct {
	System  *handler.SystemHandler
	Catalog *handler.CatalogHandler
	Orders  *handler.OrderHandler
	Listing *handler.ListingHandler
	Bundles *handler.BundleHandler
	Outbox  *handler.OutboxHandler

	// AdminMiddleware guards the operator routes
	AdminMiddleware []gin.HandlerFunc
}

func get(path string, h gin.HandlerFunc) Route  { return Route{http.MethodGet, path, h} }
func post(path string, h gin.HandlerFunc) Route { return Route{http.MethodPost, path, h} }
func put(path string, h gin.HandlerFunc) Route  { return Route{http.MethodPut, path, h} }

// Groups builds the API route groups, in registration order.
func (h Handlers) Groups() []Group {
	var groups []Group

	if h.System != nil {
		groups = append(groups, Group{Prefix: "/system", Routes: []Route{
			get("/info", h.System.GetSystemInfo),
			get("/ping", h.System.Ping),
		}})
	}

	bundles := Group{Prefix: "/bundles"}
	if h.Catalog != nil {
		groups = append(groups,
			Group{Prefix: "/products", Routes: []Route{
				post("", h.Catalog.CreateProduct),
			}},
			Group{Prefix: "/variants", Routes: []Route{
				post("", h.Catalog.CreateVariant),
				get("/:id", h.Catalog.GetVariant),
				put("/:id/stock", h.Catalog.AdjustStock),
				put("/:id/price", h.Catalog.SetPrice),
				post("/:id/recompute", h.Catalog.Recompute),
			}},
		)
		bundles.Routes = append(bundles.Routes, put("/:id/components", h.Catalog.ReplaceRecipe))
	}
	if h.Bundles != nil {
		bundles.Routes = append(bundles.Routes,
			post("/generate", h.Bundles.Generate),
			post("/promote", h.Bundles.Promote),
		)
	}
	if len(bundles.Routes) > 0 {
		groups = append(groups, bundles)
	}

	if h.Orders != nil {
		groups = append(groups,
			Group{Prefix: "/orders", Routes: []Route{
				post("/lines", h.Orders.ApplyLines),
				post("/pull", h.Orders.Pull),
			}},
			Group{Prefix: "/webhooks", Routes: []Route{
				post("/orders", h.Orders.Webhook),
			}},
		)
	}

	if h.Listing != nil {
		groups = append(groups, Group{Prefix: "/listings", Routes: []Route{
			post("", h.Listing.Create),
			get("", h.Listing.List),
			get("/:id", h.Listing.Get),
			put("/:id", h.Listing.Update),
			post("/:id/sync", h.Listing.Sync),
			post("/:id/archive", h.Listing.Archive),
		}})
	}

	if h.Outbox != nil {
		groups = append(groups, Group{
			Prefix:     "/admin",
			Middleware: h.AdminMiddleware,
			Groups: []Group{{Prefix: "/outbox", Routes: []Route{
				get("/stats", h.Outbox.Stats),
				get("/dead", h.Outbox.DeadLetters),
				post("/:id/requeue", h.Outbox.Requeue),
				post("/requeue-all", h.Outbox.RequeueAll),
				post("/purge", h.Outbox.Purge),
			}}},
		})
	}

	return groups
}

// Setup mounts the health probe at the root, where load balancers expect
// it, and every other group under APIPrefix. It returns what was mounted.
func Setup(engine *gin.Engine, h Handlers) []RouteInfo {
	if h.System != nil {
		engine.GET("/health", h.System.Health)
	}
	api := engine.Group(APIPrefix)
	for _, g := range h.Groups() {
		Mount(api, g)
	}
	return Routes(engine)
}
