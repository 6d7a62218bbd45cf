package nt4

import "fmt"

// Type is an NT4 value type tag. The numeric encoding matches the wire
// format used by WPILib's NT4 implementations so this client interoperates
// with any conforming server.
type Type struct {
	name string
	num  uint8
}

func (t Type) String() string { return t.name }

// Num returns the wire type tag written into value frames.
func (t Type) Num() uint8 { return t.num }

var (
	Boolean      = Type{"boolean", 0}
	Double       = Type{"double", 1}
	Int          = Type{"int", 2}
	Float        = Type{"float", 3}
	String       = Type{"string", 4}
	JSON         = Type{"json", 4}
	Raw          = Type{"raw", 5}
	RPC          = Type{"rpc", 5}
	MsgPack      = Type{"msgpack", 5}
	BooleanArray = Type{"boolean[]", 16}
	DoubleArray  = Type{"double[]", 17}
	IntArray     = Type{"int[]", 18}
	FloatArray   = Type{"float[]", 19}
	StringArray  = Type{"string[]", 20}
)

// typeByName resolves the type names used on the wire (the `type` field of
// publish/announce messages) to their Type value. Unknown names are
// returned as a bare string-tagged Type so decoding never fails outright
// on a type the core doesn't special-case.
func typeByName(name string) Type {
	switch name {
	case "boolean":
		return Boolean
	case "double":
		return Double
	case "int":
		return Int
	case "float":
		return Float
	case "string":
		return String
	case "json":
		return JSON
	case "raw":
		return Raw
	case "rpc":
		return RPC
	case "msgpack":
		return MsgPack
	case "boolean[]":
		return BooleanArray
	case "double[]":
		return DoubleArray
	case "int[]":
		return IntArray
	case "float[]":
		return FloatArray
	case "string[]":
		return StringArray
	default:
		return Type{name, 0xFF}
	}
}

func typeByNum(num uint8) (Type, bool) {
	switch num {
	case 0:
		return Boolean, true
	case 1:
		return Double, true
	case 2:
		return Int, true
	case 3:
		return Float, true
	case 4:
		return String, true
	case 5:
		return Raw, true
	case 16:
		return BooleanArray, true
	case 17:
		return DoubleArray, true
	case 18:
		return IntArray, true
	case 19:
		return FloatArray, true
	case 20:
		return StringArray, true
	default:
		return Type{}, false
	}
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.name), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	*t = typeByName(string(b))
	return nil
}

func (t Type) GoString() string {
	return fmt.Sprintf("nt4.Type(%s)", t.name)
}
