// Package common contains common constants and variables used across services
package common

// Katana aggregate router commands, one byte per entry of execute(commands, inputs, deadline).
const (
	CommandV3SwapExactIn  byte = 0x00
	CommandV3SwapExactOut byte = 0x01
	CommandV2SwapExactIn  byte = 0x08
	CommandV2SwapExactOut byte = 0x09
)

const (
	// DefaultRouterAddress is the Katana aggregate router on Ronin mainnet.
	DefaultRouterAddress = "0x5f0acdd3ec767514ff1bf7e79949640bf94576bd"
	// DefaultCallerAddress is the account quotes are simulated from.
	DefaultCallerAddress = "0xc1eb47de5d549d45a871e32d9d082e7ac5d2e3ed"
	// DefaultSwapDeadline is far enough in the future to never expire during simulation.
	DefaultSwapDeadline uint64 = 32509705735
	RoninChainID        uint64 = 2020
)
