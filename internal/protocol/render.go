package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// Render formats the payload for logs and traces. It is lossy and never
// parsed back.
func (v Value) Render() string {
	switch x := v.payload.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case complex64:
		return renderComplex(float64(real(x)), float64(imag(x)), 32)
	case complex128:
		return renderComplex(real(x), imag(x), 64)
	case string:
		return x
	case []byte:
		return "0x" + hex.EncodeToString(x)
	case fmt.Stringer:
		return x.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func renderComplex(re, im float64, bits int) string {
	return "(" + strconv.FormatFloat(re, 'g', -1, bits) + ", " + strconv.FormatFloat(im, 'g', -1, bits) + ")"
}

func (v Value) String() string {
	return v.name + "(" + v.Render() + ")"
}
