package contract

import (
	"encoding/hex"
	"fmt"
	"sort"
)

// Input describes the single constructor argument a template takes, if any.
// It is one of NoInput, StringInput or NumberInput.
type Input interface {
	// Kind is "none", "string" or "number".
	Kind() string
	isInput()
}

// NoInput marks a template with no constructor argument.
type NoInput struct{}

// StringInput is a single UTF-8 string argument.
type StringInput struct {
	Label string
}

// NumberInput is a single uint256 argument entered as a decimal string.
type NumberInput struct {
	Label string
}

func (NoInput) Kind() string     { return "none" }
func (StringInput) Kind() string { return "string" }
func (NumberInput) Kind() string { return "number" }

func (NoInput) isInput()     {}
func (StringInput) isInput() {}
func (NumberInput) isInput() {}

// Template is a deployable contract: creation bytecode plus the shape of its
// constructor argument.
type Template struct {
	ID          string // machine key, stored as contractType
	Name        string // display name, stored as contractName
	Description string
	Bytecode    []byte
	Input       Input
}

// HasInput reports whether the template takes a constructor argument.
func (t Template) HasInput() bool {
	_, none := t.Input.(NoInput)
	return t.Input != nil && !none
}

// Label returns the prompt for the template's argument, or "".
func (t Template) Label() string {
	switch in := t.Input.(type) {
	case StringInput:
		return in.Label
	case NumberInput:
		return in.Label
	}
	return ""
}

// BytecodeHex returns the 0x-prefixed creation bytecode.
func (t Template) BytecodeHex() string {
	return "0x" + hex.EncodeToString(t.Bytecode)
}

// Creation code shared by every template. It copies everything after itself
// (runtime code plus any appended constructor argument) into memory and
// returns it as the deployed code:
//
//	60 0d  PUSH1 13      length of this prefix
//	38     CODESIZE
//	03     SUB           size = codesize - 13
//	80     DUP1
//	60 0d  PUSH1 13      source offset
//	60 00  PUSH1 0       memory offset
//	39     CODECOPY
//	60 00  PUSH1 0
//	f3     RETURN        memory[0:size]
const initCode = "600d380380600d6000396000f3"

// Runtime bodies.
const (
	// echoRuntime has the same shape as initCode: when called it returns the
	// bytes that follow it in the deployed code, i.e. the ABI-encoded
	// constructor argument.
	echoRuntime = "600d380380600d6000396000f3"

	// counterRuntime increments slot 0 and returns the new value:
	// PUSH1 0 SLOAD PUSH1 1 ADD DUP1 PUSH1 0 SSTORE PUSH1 0 MSTORE PUSH1 32 PUSH1 0 RETURN
	counterRuntime = "6000546001018060005560005260206000f3"

	// calculatorRuntime returns the sum of the two words after the selector:
	// PUSH1 4 CALLDATALOAD PUSH1 36 CALLDATALOAD ADD PUSH1 0 MSTORE PUSH1 32 PUSH1 0 RETURN
	calculatorRuntime = "6004356024350160005260206000f3"
)

var templateRegistry = map[string]Template{}

// RegisterTemplate adds a template to the catalog.
func RegisterTemplate(t Template) {
	templateRegistry[t.ID] = t
}

// Lookup returns a template by ID.
func Lookup(id string) (Template, error) {
	t, ok := templateRegistry[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, id)
	}
	return t, nil
}

// All returns all registered templates sorted by ID.
func All() []Template {
	out := make([]Template, 0, len(templateRegistry))
	for _, t := range templateRegistry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func mustCode(parts ...string) []byte {
	var s string
	for _, p := range parts {
		s += p
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("template bytecode: %v", err))
	}
	return b
}

func init() {
	for _, t := range []Template{
		{
			ID:          "string",
			Name:        "String Storage",
			Description: "Stores a string and returns it on any call.",
			Bytecode:    mustCode(initCode, echoRuntime),
			Input:       StringInput{Label: "Text"},
		},
		{
			ID:          "calculator",
			Name:        "Calculator",
			Description: "Adds two uint256 values: add(uint256,uint256).",
			Bytecode:    mustCode(initCode, calculatorRuntime),
			Input:       NoInput{},
		},
		{
			ID:          "counter",
			Name:        "Counter",
			Description: "Increments a stored counter on every call.",
			Bytecode:    mustCode(initCode, counterRuntime),
			Input:       NoInput{},
		},
		{
			ID:          "greeter",
			Name:        "Greeter",
			Description: "Returns the greeting it was deployed with.",
			Bytecode:    mustCode(initCode, echoRuntime),
			Input:       StringInput{Label: "Greeting"},
		},
		{
			ID:          "messageboard",
			Name:        "Message Board",
			Description: "Holds a first message set at deploy time.",
			Bytecode:    mustCode(initCode, echoRuntime),
			Input:       StringInput{Label: "First message"},
		},
		{
			ID:          "numberstore",
			Name:        "Number Store",
			Description: "Stores a uint256 and returns it on any call.",
			Bytecode:    mustCode(initCode, echoRuntime),
			Input:       NumberInput{Label: "Initial number"},
		},
	} {
		RegisterTemplate(t)
	}
}
