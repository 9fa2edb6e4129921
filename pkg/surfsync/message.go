package surfsync

import (
	"fmt"
	"strconv"

	"github.com/hypebeast/go-osc/osc"
)

// Message is one addressed OSC message. Args hold int32, float32, string
// or bool values on the way out; inbound values are whatever the codec decoded.
type Message struct {
	Address string
	Args    []any
}

func NewMessage(address string, args ...any) Message {
	return Message{Address: address, Args: args}
}

// packet converts m to the codec's message type
func (m Message) packet() *osc.Message {
	return osc.NewMessage(m.Address, m.Args...)
}

// argFloat converts any numeric argument at index i
func argFloat(args []any, i int) (float64, bool) {
	if i < 0 || i >= len(args) {
		return 0, false
	}

	switch v := args[i].(type) {
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}

	return 0, false
}

func argInt(args []any, i int) (int, bool) {
	f, ok := argFloat(args, i)
	if !ok {
		return 0, false
	}

	return int(f), true
}

func argString(args []any, i int) (string, bool) {
	if i < 0 || i >= len(args) {
		return "", false
	}

	switch v := args[i].(type) {
	case string:
		return v, true
	case nil:
		return "", false
	}

	return fmt.Sprint(args[i]), true
}

// argBool reads a boolean-like argument: integers are true when nonzero,
// floats when at least 0.5
func argBool(args []any, i int) (bool, bool) {
	if i < 0 || i >= len(args) {
		return false, false
	}

	switch v := args[i].(type) {
	case int32:
		return v != 0, true
	case int64:
		return v != 0, true
	case int:
		return v != 0, true
	case bool:
		return v, true
	}

	f, ok := argFloat(args, i)
	if !ok {
		return false, false
	}

	return f >= 0.5, true
}

func boolArg(v bool) int32 {
	if v {
		return 1
	}
	return 0
}
