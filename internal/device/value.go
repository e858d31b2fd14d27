package device

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType identifies the declared type of a capability value.
type ValueType string

// Declared value types reported by the driver.
const (
	TypeBool    ValueType = "bool"
	TypeByte    ValueType = "byte"
	TypeShort   ValueType = "short"
	TypeInt     ValueType = "int"
	TypeDecimal ValueType = "decimal"
	TypeList    ValueType = "list"
)

// Value is the current value of a capability. It is a closed sum type:
// the only implementations are Bool, Byte, Short, Int, Decimal and List.
type Value interface {
	// Type returns the declared type of the value.
	Type() ValueType

	// String renders the value the way clients expect to see it.
	String() string

	isValue()
}

// Bool is a binary value (on/off, open/closed).
type Bool bool

// Byte is an unsigned 8-bit value (dimmer level, hour of day).
type Byte uint8

// Short is an unsigned 16-bit value.
type Short uint16

// Int is a signed 32-bit value (wake-up interval seconds).
type Int int32

// Decimal is a floating point value (temperatures, setpoints).
type Decimal float32

// List is a selection out of a fixed set of items.
type List struct {
	Selected string
	Index    int
}

func (Bool) Type() ValueType    { return TypeBool }
func (Byte) Type() ValueType    { return TypeByte }
func (Short) Type() ValueType   { return TypeShort }
func (Int) Type() ValueType     { return TypeInt }
func (Decimal) Type() ValueType { return TypeDecimal }
func (List) Type() ValueType    { return TypeList }

func (v Bool) String() string    { return strconv.FormatBool(bool(v)) }
func (v Byte) String() string    { return strconv.Itoa(int(v)) }
func (v Short) String() string   { return strconv.Itoa(int(v)) }
func (v Int) String() string     { return strconv.Itoa(int(v)) }
func (v Decimal) String() string { return strconv.FormatFloat(float64(v), 'f', -1, 32) }
func (v List) String() string    { return v.Selected }

func (Bool) isValue()    {}
func (Byte) isValue()    {}
func (Short) isValue()   {}
func (Int) isValue()     {}
func (Decimal) isValue() {}
func (List) isValue()    {}

// Float returns the numeric reading of v. ok is false for list values,
// which carry no meaningful number.
func Float(v Value) (f float64, ok bool) {
	switch t := v.(type) {
	case Bool:
		if t {
			return 1, true
		}
		return 0, true
	case Byte:
		return float64(t), true
	case Short:
		return float64(t), true
	case Int:
		return float64(t), true
	case Decimal:
		return float64(t), true
	case List:
		return 0, false
	}
	return 0, false
}

// Parse converts text into a value of the given declared type. Numeric text
// destined for a bool is accepted with any non-zero number meaning true, so
// "255" switches a binary switch on. items are the valid selections of a
// list value and may be nil for other types.
func Parse(t ValueType, text string, items []string) (Value, error) {
	text = strings.TrimSpace(text)
	switch t {
	case TypeBool:
		if b, err := strconv.ParseBool(text); err == nil {
			return Bool(b), nil
		}
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", ErrBadValue, text)
		}
		return Bool(n != 0), nil
	case TypeByte:
		n, err := parseInt(text, 0, 255)
		if err != nil {
			return nil, err
		}
		return Byte(n), nil
	case TypeShort:
		n, err := parseInt(text, 0, 65535)
		if err != nil {
			return nil, err
		}
		return Short(n), nil
	case TypeInt:
		n, err := parseInt(text, -1<<31, 1<<31-1)
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case TypeDecimal:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrBadValue, text)
		}
		return Decimal(f), nil
	case TypeList:
		for i, item := range items {
			if item == text {
				return List{Selected: item, Index: i}, nil
			}
		}
		if len(items) == 0 {
			return List{Selected: text, Index: -1}, nil
		}
		return nil, fmt.Errorf("%w: %q is not one of %s", ErrBadValue, text, strings.Join(items, ", "))
	}
	return nil, fmt.Errorf("%w: %s", ErrValueTypeUnsupported, t)
}

// FromFloat converts a number into a value of the given declared type,
// truncating where the type is integral. Used for scene assignments, which
// arrive as plain numbers.
func FromFloat(t ValueType, f float64, items []string) (Value, error) {
	switch t {
	case TypeBool:
		return Bool(f != 0), nil
	case TypeByte:
		return Byte(uint8(f)), nil
	case TypeShort:
		return Short(uint16(f)), nil
	case TypeInt:
		return Int(int32(f)), nil
	case TypeDecimal:
		return Decimal(float32(f)), nil
	case TypeList:
		idx := int(f)
		if idx < 0 || (len(items) > 0 && idx >= len(items)) {
			return nil, fmt.Errorf("%w: selection %d out of range", ErrBadValue, idx)
		}
		l := List{Index: idx}
		if idx < len(items) {
			l.Selected = items[idx]
		}
		return l, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrValueTypeUnsupported, t)
}

func parseInt(text string, lo, hi int64) (int64, error) {
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		// Accept "21.0" style input from clients that always send decimals.
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrBadValue, text)
		}
		n = int64(f)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %d out of range [%d, %d]", ErrBadValue, n, lo, hi)
	}
	return n, nil
}
