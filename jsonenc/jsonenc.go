// Package jsonenc provides the default types.Encoder used by cmd/netlogd
// and the observer's own tests: a json-iterator configuration pinned to
// compact, deterministic output.
//
// The file writer's stitching step seeks back exactly two bytes to drop a
// trailing ",\n" separator. That arithmetic only holds if the encoder never
// emits extra whitespace, so this package hardcodes the compatible
// jsoniter config rather than exposing one that callers could point at
// pretty-printing.
package jsonenc

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/pithecene-io/netlog/types"
)

var compact = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Encoder is the default types.Encoder: compact, sorted-key JSON via
// json-iterator.
var Encoder types.Encoder = types.EncoderFunc(encode)

func encode(value any) (string, error) {
	b, err := compact.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
