package http

import (
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/http/httputil"
)

type RoutesHandler struct {
	aggregatorSvc QuoteService
}

func NewRoutesHandler(aggregatorSvc QuoteService) *RoutesHandler {
	return &RoutesHandler{aggregatorSvc: aggregatorSvc}
}

func (h *RoutesHandler) SetRoutes(pub *gin.RouterGroup, debug *gin.RouterGroup) {
	pub.GET("/list", h.listRoutes)
	pub.GET("/:index", h.getRoute)
}

func (h *RoutesHandler) Root() string {
	return "/routes"
}

// HopInfo describes one pool a route trades through
type HopInfo struct {
	// Pool contract address
	Pool string `json:"pool" example:"0x2ECb08f87F075b5769FE543d0E52e40140575ea7"`

	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`

	// Venue variant: katana-v2 or katana-v3
	Variant string `json:"variant" example:"katana-v3"`

	// V3 fee tier in hundredths of a bip, zero for V2
	Fee uint32 `json:"fee" example:"3000"`
}

// RouteInfo describes a configured route
type RouteInfo struct {
	// Index of the route in the configured route list
	Index    int       `json:"index" example:"0"`
	Name     string    `json:"name" example:"ron-usdc-v3"`
	TokenIn  string    `json:"tokenIn"`
	TokenOut string    `json:"tokenOut"`
	Hops     []HopInfo `json:"hops"`
}

// RouteListResponse contains every configured route
type RouteListResponse struct {
	Routes []RouteInfo `json:"routes"`
	Total  int         `json:"total" example:"4"`
}

func newRouteInfo(index int, route domain.Route) RouteInfo {
	hops := make([]HopInfo, 0, route.Len())
	for _, p := range route.Pools() {
		hops = append(hops, HopInfo{
			Pool:     p.Address.Hex(),
			TokenIn:  p.TokenIn.Hex(),
			TokenOut: p.TokenOut.Hex(),
			Variant:  p.Variant.String(),
			Fee:      p.Fee,
		})
	}
	return RouteInfo{
		Index:    index,
		Name:     route.Name(),
		TokenIn:  route.TokenIn().Hex(),
		TokenOut: route.TokenOut().Hex(),
		Hops:     hops,
	}
}

// @Summary List configured routes
// @Tags routes
// @Produce json
// @Success 200 {object} RouteListResponse
// @Router /api/v1/routes/list [get]
func (h *RoutesHandler) listRoutes(c *gin.Context) {
	routes := h.aggregatorSvc.Routes()
	infos := make([]RouteInfo, 0, len(routes))
	for i, route := range routes {
		infos = append(infos, newRouteInfo(i, route))
	}
	httputil.HandleSuccess(c, RouteListResponse{Routes: infos, Total: len(infos)})
}

// @Summary Get a configured route
// @Tags routes
// @Produce json
// @Param index path int true "Route index"
// @Success 200 {object} RouteInfo
// @Failure 400 {object} httputil.Response
// @Failure 404 {object} httputil.Response
// @Router /api/v1/routes/{index} [get]
func (h *RoutesHandler) getRoute(c *gin.Context) {
	index, ok := routeIndex(c.Param("index"))
	if !ok {
		httputil.HandleBadRequest(c, "invalid route index")
		return
	}
	routes := h.aggregatorSvc.Routes()
	if index >= len(routes) {
		httputil.HandleNotFound(c, "route not found")
		return
	}
	httputil.HandleSuccess(c, newRouteInfo(index, routes[index]))
}
