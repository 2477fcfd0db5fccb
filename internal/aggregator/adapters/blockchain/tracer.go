package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/hxuan190/evm-quote-engine/internal/aggregator/services/state"
	"github.com/hxuan190/evm-quote-engine/internal/domain"
	"github.com/hxuan190/evm-quote-engine/internal/metrics"
)

const revertedError = "execution reverted"

// TraceEngine simulates calls with debug_traceCall, combining the call tracer (status, output, logs)
// and the prestate tracer in diff mode (state changes) through the mux tracer.
type TraceEngine struct {
	client *ClientService
	// traceTimeout is the node-side tracer budget.
	traceTimeout time.Duration
}

func NewTraceEngine(client *ClientService) *TraceEngine {
	timeout := client.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &TraceEngine{client: client, traceTimeout: timeout}
}

type callArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Gas   hexutil.Uint64 `json:"gas"`
	Value *hexutil.Big   `json:"value,omitempty"`
	Input hexutil.Bytes  `json:"input"`
}

type accountOverride struct {
	Balance   *hexutil.Big                `json:"balance,omitempty"`
	Nonce     *hexutil.Uint64             `json:"nonce,omitempty"`
	Code      *hexutil.Bytes              `json:"code,omitempty"`
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

type traceConfig struct {
	Tracer         string                             `json:"tracer"`
	TracerConfig   map[string]any                     `json:"tracerConfig"`
	StateOverrides map[common.Address]accountOverride `json:"stateOverrides,omitempty"`
	Timeout        string                             `json:"timeout,omitempty"`
}

type muxResult struct {
	Call     *callFrame   `json:"callTracer"`
	Prestate prestateDiff `json:"prestateTracer"`
}

type callFrame struct {
	Type         string         `json:"type"`
	From         common.Address `json:"from"`
	To           common.Address `json:"to"`
	GasUsed      hexutil.Uint64 `json:"gasUsed"`
	Output       hexutil.Bytes  `json:"output"`
	Error        string         `json:"error"`
	RevertReason string         `json:"revertReason"`
	Logs         []callLog      `json:"logs"`
	Calls        []callFrame    `json:"calls"`
}

type callLog struct {
	Address  common.Address `json:"address"`
	Topics   []common.Hash  `json:"topics"`
	Data     hexutil.Bytes  `json:"data"`
	Position hexutil.Uint   `json:"position"`
}

type prestateDiff struct {
	Pre  map[common.Address]prestateAccount `json:"pre"`
	Post map[common.Address]prestateAccount `json:"post"`
}

type prestateAccount struct {
	Balance *hexutil.Big                `json:"balance"`
	Nonce   *uint64                     `json:"nonce"`
	Code    hexutil.Bytes               `json:"code"`
	Storage map[common.Hash]common.Hash `json:"storage"`
}

func (e *TraceEngine) Simulate(ctx context.Context, sim *state.Simulation) (*state.Trace, error) {
	ctx, cancel := e.client.withTimeout(ctx)
	defer cancel()

	args := callArgs{From: sim.From, To: sim.To, Gas: hexutil.Uint64(sim.Gas), Input: sim.Data}
	if sim.Value != nil && !sim.Value.IsZero() {
		args.Value = (*hexutil.Big)(sim.Value.ToBig())
	}
	cfg := traceConfig{
		Tracer: "muxTracer",
		TracerConfig: map[string]any{
			"callTracer":     map[string]any{"withLog": true},
			"prestateTracer": map[string]any{"diffMode": true},
		},
		StateOverrides: encodeOverrides(sim.Overrides),
		Timeout:        e.traceTimeout.String(),
	}

	var res muxResult
	if err := e.client.RPC().CallContext(ctx, &res, "debug_traceCall", args, blockArg(sim.Block), cfg); err != nil {
		metrics.EngineCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: debug_traceCall: %v", domain.ErrOracleUnavailable, err)
	}
	if res.Call == nil {
		metrics.EngineCalls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: debug_traceCall returned no call frame", domain.ErrOracleUnavailable)
	}

	trace, err := buildTrace(res)
	if err != nil {
		metrics.EngineCalls.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.EngineCalls.WithLabelValues(trace.Status.String()).Inc()
	return trace, nil
}

// blockArg prefers the hash so a reorg cannot move the pinned block.
func blockArg(ref domain.BlockRef) string {
	if ref.Hash != (common.Hash{}) {
		return ref.Hash.Hex()
	}
	return hexutil.EncodeUint64(ref.Number)
}

func encodeOverrides(delta domain.StateDelta) map[common.Address]accountOverride {
	if len(delta) == 0 {
		return nil
	}
	out := make(map[common.Address]accountOverride, len(delta))
	for addr, diff := range delta {
		if diff == nil {
			continue
		}
		var ov accountOverride
		if diff.Balance != nil {
			ov.Balance = (*hexutil.Big)(diff.Balance.ToBig())
		}
		if diff.Nonce != nil {
			n := hexutil.Uint64(*diff.Nonce)
			ov.Nonce = &n
		}
		if diff.Code != nil {
			code := hexutil.Bytes(diff.Code)
			ov.Code = &code
		}
		if len(diff.Storage) > 0 {
			ov.StateDiff = diff.Storage
		}
		out[addr] = ov
	}
	return out
}

func buildTrace(res muxResult) (*state.Trace, error) {
	top := res.Call
	trace := &state.Trace{
		Status:  state.StatusSuccess,
		Output:  top.Output,
		GasUsed: uint64(top.GasUsed),
	}
	switch {
	case top.Error == "":
		trace.Logs = collectLogs(top, nil)
	case top.Error == revertedError:
		trace.Status = state.StatusRevert
		trace.Reason = top.RevertReason
		if trace.Reason == "" {
			trace.Reason = top.Error
		}
	default:
		trace.Status = state.StatusHalt
		trace.Reason = top.Error
	}

	pre, err := decodeAccounts(res.Prestate.Pre)
	if err != nil {
		return nil, err
	}
	post, err := decodeAccounts(res.Prestate.Post)
	if err != nil {
		return nil, err
	}
	trace.Pre = pre
	trace.Post = postDelta(pre, post)
	return trace, nil
}

// collectLogs flattens the logs of successful frames in emission order.
// A log's position is the number of child calls made before it was emitted.
func collectLogs(frame *callFrame, out []*types.Log) []*types.Log {
	if frame.Error != "" {
		return out
	}
	next := 0
	for i := range frame.Calls {
		for next < len(frame.Logs) && int(frame.Logs[next].Position) <= i {
			out = append(out, frame.Logs[next].toLog())
			next++
		}
		out = collectLogs(&frame.Calls[i], out)
	}
	for ; next < len(frame.Logs); next++ {
		out = append(out, frame.Logs[next].toLog())
	}
	return out
}

func (l callLog) toLog() *types.Log {
	return &types.Log{Address: l.Address, Topics: l.Topics, Data: l.Data}
}

func decodeAccounts(accounts map[common.Address]prestateAccount) (domain.StateDelta, error) {
	delta := make(domain.StateDelta, len(accounts))
	for addr, acc := range accounts {
		diff := &domain.AccountDiff{Code: acc.Code}
		if acc.Balance != nil {
			bal, overflow := uint256.FromBig((*big.Int)(acc.Balance))
			if overflow {
				return nil, fmt.Errorf("%w: balance of %s overflows 256 bits", domain.ErrOracleUnavailable, addr.Hex())
			}
			diff.Balance = bal
		}
		if acc.Nonce != nil {
			n := *acc.Nonce
			diff.Nonce = &n
		}
		if len(acc.Storage) > 0 {
			diff.Storage = acc.Storage
		}
		delta[addr] = diff
	}
	return delta, nil
}

// postDelta turns a prestate diff into the changes the call made.
// The tracer omits cleared slots from post, so a slot changed in pre but absent from post is now zero.
func postDelta(pre, post domain.StateDelta) domain.StateDelta {
	delta := domain.StateDelta{}
	delta.Merge(post)
	for addr, before := range pre {
		for slot := range before.Storage {
			if _, ok := post.Slot(addr, slot); !ok {
				delta.SetSlot(addr, slot, common.Hash{})
			}
		}
	}
	return delta
}
