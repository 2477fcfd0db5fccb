package http

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/http/httputil"
)

// SimulateHandler prices a single configured route without splitting.
type SimulateHandler struct {
	aggregatorSvc QuoteService
}

func NewSimulateHandler(aggregatorSvc QuoteService) *SimulateHandler {
	return &SimulateHandler{aggregatorSvc: aggregatorSvc}
}

func (h *SimulateHandler) SetRoutes(pub *gin.RouterGroup, debug *gin.RouterGroup) {
	pub.GET("", h.simulate)
}

func (h *SimulateHandler) Root() string {
	return "/simulate"
}

// SimulateRequest represents the parameters for simulating one route
type SimulateRequest struct {
	// Index of the configured route
	Route *int `form:"route" binding:"required" example:"0"`

	Amount   string `form:"amount" binding:"required" example:"1000000000000000000"`
	SwapMode string `form:"swapMode" binding:"required" enums:"ExactIn,ExactOut" example:"ExactIn"`
}

// SimulateResponse contains the simulated swap on one route
type SimulateResponse struct {
	Route    RouteInfo `json:"route"`
	SwapMode string    `json:"swapMode" example:"ExactIn"`

	// Specified amount
	Amount string `json:"amount" example:"1000000000000000000"`

	// Counterpart amount: output for ExactIn, required input for ExactOut
	Quoted string `json:"quoted" example:"1985000000"`

	// Number of accounts whose state the swap changed
	TouchedAccounts int `json:"touchedAccounts" example:"5"`

	BlockNumber uint64 `json:"blockNumber" example:"43871002"`
	BlockHash   string `json:"blockHash"`
}

// @Summary Simulate one route
// @Description Execute a single configured route through the aggregate router against the latest block
// @Tags simulate
// @Produce json
// @Param route query int true "Route index"
// @Param amount query string true "Amount in smallest token units"
// @Param swapMode query string true "Swap mode" Enums(ExactIn, ExactOut)
// @Success 200 {object} SimulateResponse
// @Failure 400 {object} httputil.Response
// @Failure 404 {object} httputil.Response
// @Failure 422 {object} httputil.Response "Route reverted or settled nothing"
// @Failure 502 {object} httputil.Response
// @Router /api/v1/simulate [get]
func (h *SimulateHandler) simulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid query parameters: "+err.Error())
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	mode, err := domain.ParseSwapMode(req.SwapMode)
	if err != nil {
		httputil.HandleBadRequest(c, "invalid swapMode: must be ExactIn or ExactOut")
		return
	}

	rq, err := h.aggregatorSvc.Simulate(c.Request.Context(), *req.Route, amount, mode)
	if err != nil {
		handleError(c, err, nil)
		return
	}

	httputil.HandleSuccess(c, SimulateResponse{
		Route:           newRouteInfo(*req.Route, rq.Route),
		SwapMode:        rq.Mode.String(),
		Amount:          rq.Amount.Dec(),
		Quoted:          rq.Result.Amount.Dec(),
		TouchedAccounts: len(rq.Result.Delta),
		BlockNumber:     rq.Block.Number,
		BlockHash:       rq.Block.Hash.Hex(),
	})
}

func routeIndex(raw string) (int, bool) {
	index, err := strconv.Atoi(raw)
	return index, err == nil && index >= 0
}
