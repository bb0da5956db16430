package core

import (
	"fmt"
	"strings"
)

// CompressionType identifies the codec used for record payloads.
// It is stored in the file header so readers know how to decode records.
type CompressionType byte

const (
	CompressionNone   CompressionType = 0
	CompressionSnappy CompressionType = 1
	CompressionLZ4    CompressionType = 2
	CompressionZSTD   CompressionType = 3
)

// Compressor encodes and decodes record payloads.
type Compressor interface {
	// Encode appends the encoded form of src to dst[:0] and returns it.
	Encode(dst, src []byte) ([]byte, error)
	// Decode decodes src into dst. rawSize is the exact decoded length, which is
	// always known from the dataset layout.
	Decode(dst, src []byte, rawSize int) ([]byte, error)
	// Type returns the CompressionType identifier for this compressor.
	Type() CompressionType
}

// String returns the string representation of the CompressionType.
func (ct CompressionType) String() string {
	switch ct {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseCompressionType maps a configuration string to a CompressionType.
func ParseCompressionType(s string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, &ValidationError{Field: "compression", Value: s, Message: "unknown compression type"}
	}
}

// InputType is the element type of the input neurons of every entry.
type InputType uint8

const (
	// InputTypeByte stores one unsigned byte per input neuron.
	InputTypeByte InputType = 0
	// InputTypeFloat stores one little endian float32 per input neuron.
	InputTypeFloat InputType = 1
)

// ElementSize returns the number of bytes per input neuron.
func (t InputType) ElementSize() int {
	switch t {
	case InputTypeByte:
		return 1
	case InputTypeFloat:
		return 4
	default:
		return 0
	}
}

func (t InputType) String() string {
	switch t {
	case InputTypeByte:
		return "byte"
	case InputTypeFloat:
		return "float"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Validate reports whether t is a known input type.
func (t InputType) Validate() error {
	if t.ElementSize() == 0 {
		return &ValidationError{Field: "input_type", Value: t.String(), Message: "unsupported input type"}
	}
	return nil
}
