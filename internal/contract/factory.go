package contract

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/lmittmann/w3"
)

// factoryABIJSON is the part of the factory interface this tool uses:
//
//	deployContractWithParams(bytes) → 0x<selector of the signature>
//	event ContractDeployed(address indexed deployedAddress, address indexed deployer, bytes32 indexed salt)
const factoryABIJSON = `[
  {"type":"function","name":"deployContractWithParams","stateMutability":"nonpayable",
   "inputs":[{"name":"bytecode","type":"bytes"}],
   "outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"ContractDeployed","anonymous":false,
   "inputs":[
     {"name":"deployedAddress","type":"address","indexed":true},
     {"name":"deployer","type":"address","indexed":true},
     {"name":"salt","type":"bytes32","indexed":true}]}
]`

var (
	funcDeployWithParams = w3.MustNewFunc("deployContractWithParams(bytes)", "address")

	factoryABI    = mustParseABI(factoryABIJSON)
	eventDeployed = factoryABI.Events["ContractDeployed"]
)

// DeployedEvent is a decoded ContractDeployed log.
type DeployedEvent struct {
	DeployedAddress common.Address
	Deployer        common.Address
	Salt            [32]byte
}

// FactoryCalldata encodes deployContractWithParams(bytecode).
func FactoryCalldata(bytecode []byte) ([]byte, error) {
	return funcDeployWithParams.EncodeArgs(bytecode)
}

// DecodeFactoryReturn decodes the address returned by a simulated
// deployContractWithParams call.
func DecodeFactoryReturn(output []byte) (common.Address, error) {
	var addr common.Address
	if err := funcDeployWithParams.DecodeReturns(output, &addr); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// DecodeDeployedEvent decodes log as ContractDeployed.
func DecodeDeployedEvent(log *types.Log) (*DeployedEvent, error) {
	if log == nil || len(log.Topics) == 0 || log.Topics[0] != eventDeployed.ID {
		return nil, fmt.Errorf("not a ContractDeployed log")
	}
	var indexed abi.Arguments
	for _, arg := range eventDeployed.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	var ev DeployedEvent
	if err := abi.ParseTopics(&ev, indexed, log.Topics[1:]); err != nil {
		return nil, fmt.Errorf("decoding ContractDeployed topics: %w", err)
	}
	return &ev, nil
}

// DeployedAddress returns the deployed address from the first log that
// decodes as ContractDeployed.
func DeployedAddress(logs []*types.Log) (common.Address, bool) {
	for _, l := range logs {
		ev, err := DecodeDeployedEvent(l)
		if err != nil {
			continue
		}
		return ev.DeployedAddress, true
	}
	return common.Address{}, false
}

// DeployedTopic is the topic0 of ContractDeployed.
func DeployedTopic() common.Hash {
	return eventDeployed.ID
}

// DecodeStoredValue decodes what an input template returns when called: its
// ABI-encoded constructor argument. No-input templates return the first
// 32-byte word as a decimal integer.
func DecodeStoredValue(t Template, data []byte) (string, error) {
	var typ string
	switch t.Input.(type) {
	case StringInput:
		typ = "string"
	default:
		typ = "uint256"
	}
	ty, err := abi.NewType(typ, "", nil)
	if err != nil {
		return "", err
	}
	vals, err := abi.Arguments{{Type: ty}}.Unpack(data)
	if err != nil {
		return "", fmt.Errorf("decoding %s value: %w", typ, err)
	}
	switch v := vals[0].(type) {
	case string:
		return v, nil
	case *big.Int:
		return v.String(), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("factory abi: %v", err))
	}
	return parsed
}
