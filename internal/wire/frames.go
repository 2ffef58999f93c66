// Package wire defines the frame vocabulary of the relay endpoints: the
// authentication acknowledgement, the array-framed command batches relayed
// between sharer and controller, and the status notification frames.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
)

// AckOK is the literal acknowledgement frame sent after a successful
// secret check.
var AckOK = []byte("ok")

// Status frame types delivered to the status endpoint.
const (
	StatusConnect    = "connect"
	StatusDisconnect = "disconnect"
)

// StatusFrame notifies the status endpoint of a controller presence change.
type StatusFrame struct {
	Type string `json:"type"`
}

// EncodeStatus renders a status frame for the given type.
func EncodeStatus(kind string) []byte {
	b, _ := json.Marshal(StatusFrame{Type: kind})
	return b
}

// Batch is one array-framed group of protocol payloads. Element contents
// are opaque to the relay; only the handshake marker is ever looked at.
type Batch []json.RawMessage

// ErrNotBatch is returned for frames that are not array-framed.
var ErrNotBatch = errors.New("frame is not an array-framed batch")

// helloMarker is the protocol handshake payload a controller sends once it
// is ready to drive the rig.
const helloMarker = "hello"

// ParseBatch validates that data is a JSON array and splits it into its
// raw elements. Anything else (objects, scalars, null, malformed JSON) is
// rejected with ErrNotBatch.
func ParseBatch(data []byte) (Batch, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotBatch
	}
	var batch []json.RawMessage
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, ErrNotBatch
	}
	return batch, nil
}

// Encode renders the batch back to its wire form. Element bytes are
// preserved verbatim; only the framing whitespace can differ from the
// original frame.
func (b Batch) Encode() []byte {
	if b == nil {
		b = Batch{}
	}
	data, err := json.Marshal(b)
	if err != nil {
		// Raw elements were validated on parse; re-encoding cannot fail
		// for batches produced by ParseBatch.
		return []byte("[]")
	}
	return data
}

// ContainsHello reports whether any element of the batch is the handshake
// marker: the bare string "hello" or an array whose first element is
// "hello".
func (b Batch) ContainsHello() bool {
	for _, element := range b {
		if isHelloElement(element) {
			return true
		}
	}
	return false
}

func isHelloElement(element json.RawMessage) bool {
	trimmed := bytes.TrimLeft(element, " \t\r\n")
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '"':
		var s string
		return json.Unmarshal(element, &s) == nil && s == helloMarker
	case '[':
		var inner []json.RawMessage
		if err := json.Unmarshal(element, &inner); err != nil || len(inner) == 0 {
			return false
		}
		var s string
		return json.Unmarshal(inner[0], &s) == nil && s == helloMarker
	}
	return false
}
