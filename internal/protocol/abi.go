package protocol

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"stableMirror/internal/event"
)

const psmABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "user", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "stable", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amountIn", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "amountOut", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "feeAmount", "type": "uint256"}
    ],
    "name": "Swap",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "stable", "type": "address"},
      {"indexed": false, "internalType": "uint128", "name": "maxDepth", "type": "uint128"},
      {"indexed": false, "internalType": "uint16", "name": "spreadBps", "type": "uint16"}
    ],
    "name": "RouteUpdated",
    "type": "event"
  },
  {
    "inputs": [{"internalType": "address", "name": "", "type": "address"}],
    "name": "routes",
    "outputs": [
      {"internalType": "uint128", "name": "maxDepth", "type": "uint128"},
      {"internalType": "uint128", "name": "buffer", "type": "uint128"},
      {"internalType": "uint16", "name": "spreadBps", "type": "uint16"},
      {"internalType": "uint8", "name": "decimals", "type": "uint8"},
      {"internalType": "bool", "name": "halted", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const allocatorVaultABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "allocator", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "to", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "AllocatorMint",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "allocator", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "repayer", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "AllocatorRepay",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "allocator", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "ceiling", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "dailyCap", "type": "uint256"}
    ],
    "name": "LineUpdated",
    "type": "event"
  }
]`

const savingsVaultABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "assets", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "shares", "type": "uint256"}
    ],
    "name": "Deposit",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "receiver", "type": "address"},
      {"indexed": true, "internalType": "address", "name": "owner", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "assets", "type": "uint256"},
      {"indexed": false, "internalType": "uint256", "name": "shares", "type": "uint256"}
    ],
    "name": "Withdraw",
    "type": "event"
  }
]`

const tokenABIJSON = `[
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

const paramRegistryABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "key", "type": "bytes32"},
      {"indexed": false, "internalType": "address", "name": "value", "type": "address"}
    ],
    "name": "AddressParamUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "key", "type": "bytes32"},
      {"indexed": false, "internalType": "uint256", "name": "value", "type": "uint256"}
    ],
    "name": "UintParamUpdated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "key", "type": "bytes32"},
      {"indexed": false, "internalType": "bool", "name": "value", "type": "bool"}
    ],
    "name": "BoolParamUpdated",
    "type": "event"
  }
]`

// eventKinds maps ABI event names, per contract role, to envelope kinds.
var eventKinds = map[event.Role]map[string]event.Kind{
	event.RolePSM: {
		"Swap":         event.KindSwapObserved,
		"RouteUpdated": event.KindRouteUpdated,
	},
	event.RoleAllocatorVault: {
		"AllocatorMint":  event.KindAllocatorMint,
		"AllocatorRepay": event.KindAllocatorRepay,
		"LineUpdated":    event.KindLineUpdated,
	},
	event.RoleSavingsVault: {
		"Deposit":  event.KindSavingsDeposit,
		"Withdraw": event.KindSavingsWithdraw,
	},
	event.RoleToken: {
		"Transfer": event.KindTokenTransfer,
	},
	event.RoleParamRegistry: {
		"AddressParamUpdated": event.KindAddressParamUpdated,
		"UintParamUpdated":    event.KindUintParamUpdated,
		"BoolParamUpdated":    event.KindBoolParamUpdated,
	},
}

var roleABIJSON = map[event.Role]string{
	event.RolePSM:            psmABIJSON,
	event.RoleAllocatorVault: allocatorVaultABIJSON,
	event.RoleSavingsVault:   savingsVaultABIJSON,
	event.RoleToken:          tokenABIJSON,
	event.RoleParamRegistry:  paramRegistryABIJSON,
}

var (
	roleABIs     map[event.Role]abi.ABI
	roleABIsOnce sync.Once
	roleABIsErr  error
)

// ABIs returns the parsed ABI of every protocol contract role.
func ABIs() (map[event.Role]abi.ABI, error) {
	roleABIsOnce.Do(func() {
		parsed := make(map[event.Role]abi.ABI, len(roleABIJSON))
		for role, raw := range roleABIJSON {
			a, err := abi.JSON(strings.NewReader(raw))
			if err != nil {
				roleABIsErr = err
				return
			}
			parsed[role] = a
		}
		roleABIs = parsed
	})
	return roleABIs, roleABIsErr
}

// PSMABI returns the parsed PSM ABI.
func PSMABI() (abi.ABI, error) {
	all, err := ABIs()
	if err != nil {
		return abi.ABI{}, err
	}
	return all[event.RolePSM], nil
}
