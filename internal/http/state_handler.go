package http

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/evm-quote-engine/internal/http/httputil"
)

// StateHandler exposes the cached chain view the quotes run against.
type StateHandler struct {
	aggregatorSvc QuoteService
}

func NewStateHandler(aggregatorSvc QuoteService) *StateHandler {
	return &StateHandler{aggregatorSvc: aggregatorSvc}
}

func (h *StateHandler) SetRoutes(pub *gin.RouterGroup, debug *gin.RouterGroup) {
	debug.GET("/account/:address", h.getAccount)
	debug.GET("/storage/:address/:slot", h.getStorage)
}

func (h *StateHandler) Root() string {
	return "/state"
}

type AccountResponse struct {
	Address  string `json:"address"`
	Balance  string `json:"balance" example:"1000000000000000000"`
	Nonce    uint64 `json:"nonce" example:"12"`
	CodeHash string `json:"codeHash"`
	CodeSize int    `json:"codeSize" example:"0"`

	BlockNumber uint64 `json:"blockNumber"`
	BlockHash   string `json:"blockHash"`
}

type StorageResponse struct {
	Address string `json:"address"`
	Slot    string `json:"slot"`
	Value   string `json:"value"`

	BlockNumber uint64 `json:"blockNumber"`
	BlockHash   string `json:"blockHash"`
}

// @Summary Get account state
// @Description Balance, nonce and code hash of an account at the latest block, served from the quote cache
// @Tags state
// @Produce json
// @Param address path string true "Account address"
// @Success 200 {object} AccountResponse
// @Failure 400 {object} httputil.Response
// @Failure 502 {object} httputil.Response
// @Router /api/v1/debug/state/account/{address} [get]
func (h *StateHandler) getAccount(c *gin.Context) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		httputil.HandleBadRequest(c, "invalid address")
		return
	}
	addr := common.HexToAddress(raw)

	acc, block, err := h.aggregatorSvc.Account(c.Request.Context(), addr)
	if err != nil {
		handleError(c, err, nil)
		return
	}

	balance := "0"
	if acc.Balance != nil {
		balance = acc.Balance.Dec()
	}
	httputil.HandleSuccess(c, AccountResponse{
		Address:     addr.Hex(),
		Balance:     balance,
		Nonce:       acc.Nonce,
		CodeHash:    acc.CodeHash.Hex(),
		CodeSize:    len(acc.Code),
		BlockNumber: block.Number,
		BlockHash:   block.Hash.Hex(),
	})
}

// @Summary Get a storage slot
// @Tags state
// @Produce json
// @Param address path string true "Contract address"
// @Param slot path string true "Slot as 0x-prefixed hex, at most 32 bytes"
// @Success 200 {object} StorageResponse
// @Failure 400 {object} httputil.Response
// @Failure 502 {object} httputil.Response
// @Router /api/v1/debug/state/storage/{address}/{slot} [get]
func (h *StateHandler) getStorage(c *gin.Context) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		httputil.HandleBadRequest(c, "invalid address")
		return
	}
	addr := common.HexToAddress(raw)

	slot, ok := parseSlot(c.Param("slot"))
	if !ok {
		httputil.HandleBadRequest(c, "invalid slot: must be 0x-prefixed hex of at most 32 bytes")
		return
	}

	value, block, err := h.aggregatorSvc.Storage(c.Request.Context(), addr, slot)
	if err != nil {
		handleError(c, err, nil)
		return
	}

	httputil.HandleSuccess(c, StorageResponse{
		Address:     addr.Hex(),
		Slot:        slot.Hex(),
		Value:       value.Hex(),
		BlockNumber: block.Number,
		BlockHash:   block.Hash.Hex(),
	})
}

// parseSlot accepts 0x-prefixed hex of up to 32 bytes, odd lengths included.
func parseSlot(raw string) (common.Hash, bool) {
	digits, ok := strings.CutPrefix(raw, "0x")
	if !ok || digits == "" {
		return common.Hash{}, false
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	b, err := hexutil.Decode("0x" + digits)
	if err != nil || len(b) > common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}
