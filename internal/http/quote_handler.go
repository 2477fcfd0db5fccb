package http

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/router"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/http/httputil"
)

// priceScale is the number of decimals kept in effective prices.
const priceScale = 18

type QuoteHandler struct {
	aggregatorSvc QuoteService
}

func NewQuoteHandler(aggregatorSvc QuoteService) *QuoteHandler {
	return &QuoteHandler{aggregatorSvc: aggregatorSvc}
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, debug *gin.RouterGroup) {
	pub.GET("", h.getQuote)
}

func (h *QuoteHandler) Root() string {
	return "/quote"
}

// QuoteRequest represents the parameters for requesting a split quote
type QuoteRequest struct {
	// Input token address (0x-prefixed hex)
	InputToken string `form:"inputToken" binding:"required" example:"0xe514d9DEB7966c8BE0ca922de8a064264eA6bcd4"`

	// Output token address (0x-prefixed hex)
	OutputToken string `form:"outputToken" binding:"required" example:"0x0B7007c13325C48911F73A2daD5FA5dCBf808aDc"`

	// Amount in smallest token units, decimal string
	Amount string `form:"amount" binding:"required" example:"1000000000000000000"`

	// Swap mode determines which side the amount fixes
	// - "ExactIn": Amount is the exact input, output is quoted
	// - "ExactOut": Amount is the exact output desired, input is quoted
	SwapMode string `form:"swapMode" binding:"required" enums:"ExactIn,ExactOut" example:"ExactIn"`

	// Number of equal chunks the amount is cut into. Zero uses the server default.
	Splits int `form:"splits" example:"10"`
}

// RouteAllocation is the share of the order one route received
type RouteAllocation struct {
	Route RouteInfo `json:"route"`

	// Specified amount routed through this route
	Specified string `json:"specified" example:"600000000000000000"`

	// Counterpart amount this route produced (output for ExactIn, input for ExactOut)
	Quoted string `json:"quoted" example:"1190000000"`

	// Share of the filled specified amount in basis points
	ShareBps uint64 `json:"shareBps" example:"6000"`
}

// FillInfo records which route won one split round
type FillInfo struct {
	Split     int    `json:"split" example:"0"`
	Route     int    `json:"route" example:"3"`
	Specified string `json:"specified" example:"100000000000000000"`
	Quoted    string `json:"quoted" example:"199000000"`
}

// QuoteResponse contains the split quote and its per-route allocation
type QuoteResponse struct {
	InputToken  string `json:"inputToken"`
	OutputToken string `json:"outputToken"`
	SwapMode    string `json:"swapMode" example:"ExactIn"`

	// Total input, requested or quoted depending on swap mode
	AmountIn string `json:"amountIn" example:"1000000000000000000"`

	// Total output, requested or quoted depending on swap mode
	AmountOut string `json:"amountOut" example:"1985000000"`

	// amountOut / amountIn in base units
	EffectivePrice string `json:"effectivePrice" example:"0.000000001985"`

	// Block the quote was simulated against
	BlockNumber uint64 `json:"blockNumber" example:"43871002"`
	BlockHash   string `json:"blockHash"`

	Splits int `json:"splits" example:"10"`

	// Set when routes ran out before every split was filled
	Partial bool `json:"partial" example:"false"`

	Allocations []RouteAllocation `json:"allocations"`
	Fills       []FillInfo        `json:"fills"`
}

type parsedQuoteRequest struct {
	req     *QuoteRequest
	request domain.QuoteRequest
}

func (h *QuoteHandler) parseQuoteRequest(c *gin.Context) (*parsedQuoteRequest, bool) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.HandleBadRequest(c, "invalid query parameters: "+err.Error())
		return nil, false
	}

	if !common.IsHexAddress(req.InputToken) {
		httputil.HandleBadRequest(c, "invalid inputToken address")
		return nil, false
	}
	if !common.IsHexAddress(req.OutputToken) {
		httputil.HandleBadRequest(c, "invalid outputToken address")
		return nil, false
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return nil, false
	}

	mode, err := domain.ParseSwapMode(req.SwapMode)
	if err != nil {
		httputil.HandleBadRequest(c, "invalid swapMode: must be ExactIn or ExactOut")
		return nil, false
	}

	if req.Splits < 0 {
		httputil.HandleBadRequest(c, "invalid splits: must not be negative")
		return nil, false
	}

	return &parsedQuoteRequest{
		req: &req,
		request: domain.QuoteRequest{
			TokenIn:  common.HexToAddress(req.InputToken),
			TokenOut: common.HexToAddress(req.OutputToken),
			Amount:   amount,
			Mode:     mode,
			Splits:   req.Splits,
		},
	}, true
}

func parseAmount(c *gin.Context, raw string) (*uint256.Int, bool) {
	amount, err := uint256.FromDecimal(raw)
	if err != nil || amount.IsZero() {
		httputil.HandleBadRequest(c, "invalid amount: must be a positive integer below 2^256")
		return nil, false
	}
	return amount, true
}

func effectivePrice(amountIn, amountOut *uint256.Int) string {
	if amountIn.IsZero() {
		return "0"
	}
	in := decimal.NewFromBigInt(amountIn.ToBig(), 0)
	out := decimal.NewFromBigInt(amountOut.ToBig(), 0)
	return out.DivRound(in, priceScale).String()
}

func NewQuoteResponse(result *domain.QuoteResult) QuoteResponse {
	alloc := result.Allocation
	specified := alloc.Specified()
	quoted := alloc.Total()

	amountIn, amountOut := specified, quoted
	if result.Request.Mode == domain.SwapModeOut {
		amountIn, amountOut = quoted, specified
	}

	allocations := make([]RouteAllocation, 0, len(result.Routes))
	for i, route := range result.Routes {
		routed := alloc.SpecifiedFor(i)
		allocations = append(allocations, RouteAllocation{
			Route:     newRouteInfo(result.RouteIDs[i], route),
			Specified: routed.Dec(),
			Quoted:    alloc.Amounts[i].Dec(),
			ShareBps:  router.ShareBps(routed, specified),
		})
	}

	fills := make([]FillInfo, 0, len(alloc.Fills))
	for _, f := range alloc.Fills {
		fills = append(fills, FillInfo{
			Split:     f.Split,
			Route:     result.RouteIDs[f.Route],
			Specified: f.Specified.Dec(),
			Quoted:    f.Quoted.Dec(),
		})
	}

	return QuoteResponse{
		InputToken:     result.Request.TokenIn.Hex(),
		OutputToken:    result.Request.TokenOut.Hex(),
		SwapMode:       result.Request.Mode.String(),
		AmountIn:       amountIn.Dec(),
		AmountOut:      amountOut.Dec(),
		EffectivePrice: effectivePrice(amountIn, amountOut),
		BlockNumber:    result.Block.Number,
		BlockHash:      result.Block.Hash.Hex(),
		Splits:         result.Request.Splits,
		Partial:        result.Partial,
		Allocations:    allocations,
		Fills:          fills,
	}
}

// @Summary Get split quote
// @Description Split an order across every configured route for the token pair. The amount is cut into equal
// @Description chunks and each chunk goes to the route that prices it best on top of the chunks already placed.
// @Description All routes are simulated against the latest block through the aggregate router.
// @Description
// @Description When routes run out before the order is filled the response is 422 and `data` carries the
// @Description partial allocation.
// @Tags quote
// @Produce json
// @Param inputToken query string true "Input token address"
// @Param outputToken query string true "Output token address"
// @Param amount query string true "Amount in smallest token units"
// @Param swapMode query string true "Swap mode: ExactIn or ExactOut" Enums(ExactIn, ExactOut)
// @Param splits query int false "Number of chunks; 0 uses the server default"
// @Success 200 {object} QuoteResponse "Split quote"
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route configured for the token pair"
// @Failure 422 {object} httputil.Response "Routes ran out, partial allocation in data"
// @Failure 502 {object} httputil.Response "Node unavailable"
// @Router /api/v1/quote [get]
func (h *QuoteHandler) getQuote(c *gin.Context) {
	parsed, ok := h.parseQuoteRequest(c)
	if !ok {
		return
	}

	result, err := h.aggregatorSvc.Quote(c.Request.Context(), parsed.request)
	if err != nil {
		var data interface{}
		if result != nil && errors.Is(err, domain.ErrAllRoutesUnavailable) {
			data = NewQuoteResponse(result)
		}
		handleError(c, err, data)
		return
	}

	httputil.HandleSuccess(c, NewQuoteResponse(result))
}
