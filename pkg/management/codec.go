package management

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MarshalJSON encodes the request in the HTTP management API format:
// operation and address first, followed by the parameters in name order.
func (r *Request) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	op, err := json.Marshal(string(r.Operation))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal operation: %w", err)
	}
	buf.WriteString(`"operation":`)
	buf.Write(op)

	addr := r.Address
	if addr == nil {
		addr = Address{}
	}
	addrBytes, err := json.Marshal([]PathElement(addr))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal address: %w", err)
	}
	buf.WriteString(`,"address":`)
	buf.Write(addrBytes)

	for _, name := range r.ParamNames() {
		key, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameter name: %w", err)
		}
		val, err := json.Marshal(r.Params[name])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal parameter %s: %w", name, err)
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encoder writes management requests to an io.Writer.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates a new request encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode validates and writes a request.
func (e *Encoder) Encode(req *Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// Decoder reads management responses from an io.Reader.
type Decoder struct {
	r io.Reader
}

// NewDecoder creates a new response decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads a whole response body and parses it.
func (d *Decoder) Decode() (*Response, error) {
	data, err := io.ReadAll(d.r)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return ParseResponse(data)
}

// wireResponse mirrors the JSON shape of a management response.
type wireResponse struct {
	Outcome            string          `json:"outcome"`
	Result             json.RawMessage `json:"result,omitempty"`
	FailureDescription json.RawMessage `json:"failure-description,omitempty"`
	RolledBack         *bool           `json:"rolled-back,omitempty"`
}

// ParseResponse decodes a management response. An empty or null body yields
// an undefined response.
func ParseResponse(data []byte) (*Response, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &Response{Defined: false}, nil
	}

	var wire wireResponse
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &Response{
		Defined:            true,
		Outcome:            wire.Outcome,
		Result:             wire.Result,
		FailureDescription: failureText(wire.FailureDescription),
		RolledBack:         wire.RolledBack,
	}, nil
}

// failureText returns a string failure description as-is and any other
// JSON value as compact text.
func failureText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return compact.String()
}
