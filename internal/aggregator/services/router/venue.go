package router

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	appcommon "github.com/hxuan190/evm-quote-engine/internal/common"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
)

const aggregateRouterABI = `[
	{
		"inputs": [
			{"internalType": "bytes", "name": "commands", "type": "bytes"},
			{"internalType": "bytes[]", "name": "inputs", "type": "bytes[]"},
			{"internalType": "uint256", "name": "deadline", "type": "uint256"}
		],
		"name": "execute",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	}
]`

const erc20TransferABI = `[
	{
		"anonymous": false,
		"inputs": [
			{"indexed": true, "internalType": "address", "name": "from", "type": "address"},
			{"indexed": true, "internalType": "address", "name": "to", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
		],
		"name": "Transfer",
		"type": "event"
	}
]`

// VenueConfig locates the aggregate router every venue variant is executed through.
type VenueConfig struct {
	Router   common.Address
	Deadline *uint256.Int
	// GasLimit caps each swap call; zero leaves the ledger default.
	GasLimit uint64
}

// Venues encodes swaps for the closed set of supported variants and decodes their settlement.
type Venues struct {
	config     VenueConfig
	routerABI  abi.ABI
	v2Input    abi.Arguments
	v3Input    abi.Arguments
	transferID common.Hash
}

func NewVenues(cfg VenueConfig) (*Venues, error) {
	if cfg.Router == (common.Address{}) {
		return nil, fmt.Errorf("venue config: router address is required")
	}
	if cfg.Deadline == nil || cfg.Deadline.IsZero() {
		cfg.Deadline = uint256.NewInt(appcommon.DefaultSwapDeadline)
	}

	routerABI, err := abi.JSON(strings.NewReader(aggregateRouterABI))
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20TransferABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	v2Input, err := swapInputArguments("address[]")
	if err != nil {
		return nil, err
	}
	v3Input, err := swapInputArguments("bytes")
	if err != nil {
		return nil, err
	}

	return &Venues{
		config:     cfg,
		routerABI:  routerABI,
		v2Input:    v2Input,
		v3Input:    v3Input,
		transferID: erc20ABI.Events["Transfer"].ID,
	}, nil
}

// swapInputArguments builds (recipient, amountA, amountB, path, payerIsUser).
func swapInputArguments(pathType string) (abi.Arguments, error) {
	args := make(abi.Arguments, 0, 5)
	for _, t := range []string{"address", "uint256", "uint256", pathType, "bool"} {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, fmt.Errorf("abi type %s: %w", t, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args, nil
}

func (v *Venues) Router() common.Address {
	return v.config.Router
}

func (v *Venues) GasLimit() uint64 {
	return v.config.GasLimit
}

// EncodeSwap builds the router calldata swapping amount through seg for recipient.
// In mode spends exactly amount with no minimum output; Out mode receives exactly amount with no input cap.
func (v *Venues) EncodeSwap(seg domain.Segment, recipient common.Address, amount *uint256.Int, mode domain.SwapMode) ([]byte, error) {
	if len(seg.Pools) == 0 {
		return nil, fmt.Errorf("%w: empty segment", domain.ErrInvalidRoute)
	}

	amountA, amountB := amount.ToBig(), new(uint256.Int).ToBig()
	if mode == domain.SwapModeOut {
		amountB = maxUint256().ToBig()
	}

	var (
		command byte
		input   []byte
		err     error
	)
	switch seg.Variant {
	case domain.VariantKatanaV2:
		command = appcommon.CommandV2SwapExactIn
		if mode == domain.SwapModeOut {
			command = appcommon.CommandV2SwapExactOut
		}
		input, err = v.v2Input.Pack(recipient, amountA, amountB, v2Path(seg.Pools), true)
	case domain.VariantKatanaV3:
		command = appcommon.CommandV3SwapExactIn
		if mode == domain.SwapModeOut {
			command = appcommon.CommandV3SwapExactOut
		}
		input, err = v.v3Input.Pack(recipient, amountA, amountB, v3Path(seg.Pools, mode == domain.SwapModeOut), true)
	default:
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownVariant, seg.Variant)
	}
	if err != nil {
		return nil, fmt.Errorf("pack %s swap input: %w", seg.Variant, err)
	}

	data, err := v.routerABI.Pack("execute", []byte{command}, [][]byte{input}, v.config.Deadline.ToBig())
	if err != nil {
		return nil, fmt.Errorf("pack execute: %w", err)
	}
	return data, nil
}

// Settled sums the ERC-20 transfers that settle seg for caller: output received in In mode,
// input paid in Out mode.
func (v *Venues) Settled(logs []*types.Log, seg domain.Segment, caller common.Address, mode domain.SwapMode) *uint256.Int {
	total := new(uint256.Int)
	for _, l := range logs {
		if l == nil || len(l.Topics) != 3 || l.Topics[0] != v.transferID || len(l.Data) != 32 {
			continue
		}
		from := common.BytesToAddress(l.Topics[1].Bytes())
		to := common.BytesToAddress(l.Topics[2].Bytes())

		switch mode {
		case domain.SwapModeIn:
			if l.Address != seg.TokenOut() || to != caller {
				continue
			}
		case domain.SwapModeOut:
			if l.Address != seg.TokenIn() || from != caller {
				continue
			}
		}
		total.Add(total, new(uint256.Int).SetBytes(l.Data))
	}
	return total
}

func v2Path(pools []domain.Pool) []common.Address {
	path := make([]common.Address, 0, len(pools)+1)
	path = append(path, pools[0].TokenIn)
	for _, p := range pools {
		path = append(path, p.TokenOut)
	}
	return path
}

// v3Path packs token ‖ fee ‖ token ‖ ... with 3-byte big-endian fees.
// Exact-output paths are walked backwards by the router, so they start from the output token.
func v3Path(pools []domain.Pool, reverse bool) []byte {
	path := make([]byte, 0, common.AddressLength+len(pools)*(3+common.AddressLength))
	var fee [4]byte
	if !reverse {
		path = append(path, pools[0].TokenIn.Bytes()...)
		for _, p := range pools {
			binary.BigEndian.PutUint32(fee[:], p.Fee)
			path = append(path, fee[1:]...)
			path = append(path, p.TokenOut.Bytes()...)
		}
		return path
	}

	path = append(path, pools[len(pools)-1].TokenOut.Bytes()...)
	for i := len(pools) - 1; i >= 0; i-- {
		binary.BigEndian.PutUint32(fee[:], pools[i].Fee)
		path = append(path, fee[1:]...)
		path = append(path, pools[i].TokenIn.Bytes()...)
	}
	return path
}
