package verify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Identifier keys of the envelope, facilities are looked up by PPB number
// and professionals by license number.
const (
	KeyPPBNumber     = "ppb_number"
	KeyLicenseNumber = "license_number"
)

// Envelope is the response of every verification, successful or not.
type Envelope[R any] struct {
	Success          bool
	IdentifierKey    string
	Identifier       string
	Message          string
	ProcessingTimeMS float64
	FromCache        bool
	// Data is nil on failure.
	Data *R
}

// Summary is the record independent view of an envelope.
type Summary struct {
	Success          bool
	Identifier       string
	Message          string
	ProcessingTimeMS float64
	FromCache        bool
	Data             any
}

// Result is an envelope of any record type.
type Result interface {
	json.Marshaler
	Summary() Summary
}

func (e Envelope[R]) Summary() Summary {
	s := Summary{
		Success:          e.Success,
		Identifier:       e.Identifier,
		Message:          e.Message,
		ProcessingTimeMS: e.ProcessingTimeMS,
		FromCache:        e.FromCache,
	}
	if e.Data != nil {
		s.Data = e.Data
	}
	return s
}

// MarshalJSON writes the fields in a fixed order with the identifier under
// its record specific key.
func (e Envelope[R]) MarshalJSON() ([]byte, error) {
	key := e.IdentifierKey
	if key == "" {
		key = KeyLicenseNumber
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	fields := []struct {
		name  string
		value any
	}{
		{"success", e.Success},
		{key, e.Identifier},
		{"message", e.Message},
		{"processing_time_ms", e.ProcessingTimeMS},
		{"from_cache", e.FromCache},
		{"data", e.Data},
	}
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f.name, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *Envelope[R]) UnmarshalJSON(data []byte) error {
	var raw struct {
		Success          bool    `json:"success"`
		PPBNumber        *string `json:"ppb_number"`
		LicenseNumber    *string `json:"license_number"`
		Message          string  `json:"message"`
		ProcessingTimeMS float64 `json:"processing_time_ms"`
		FromCache        bool    `json:"from_cache"`
		Data             *R      `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Envelope[R]{
		Success:          raw.Success,
		Message:          raw.Message,
		ProcessingTimeMS: raw.ProcessingTimeMS,
		FromCache:        raw.FromCache,
		Data:             raw.Data,
	}
	switch {
	case raw.PPBNumber != nil:
		e.IdentifierKey = KeyPPBNumber
		e.Identifier = *raw.PPBNumber
	case raw.LicenseNumber != nil:
		e.IdentifierKey = KeyLicenseNumber
		e.Identifier = *raw.LicenseNumber
	}
	return nil
}

// elapsedMS is the time since start in milliseconds rounded to 2 decimals.
func elapsedMS(start time.Time) float64 {
	return math.Round(float64(time.Since(start))/float64(time.Millisecond)*100) / 100
}

// verifiedAtLayout is UTC with a literal Z.
const verifiedAtLayout = "2006-01-02T15:04:05Z"
