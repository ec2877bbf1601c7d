package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	envelopeVersion = 1
	// SchemeCBOR marks a payload encoded with Marshal.
	SchemeCBOR = "cbor"
)

// Envelope wraps a stored payload with the information needed to decode it.
type Envelope struct {
	Ver     int    `cbor:"1,keyasint" json:"ver"`
	Scheme  string `cbor:"2,keyasint" json:"scheme"`
	Payload []byte `cbor:"3,keyasint" json:"payload"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with CBOR core deterministic encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// SealRecord encodes v into a CBOR envelope.
func SealRecord(v any) (*Envelope, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return &Envelope{Ver: envelopeVersion, Scheme: SchemeCBOR, Payload: data}, nil
}

// OpenRecord decodes a CBOR envelope into v.
func OpenRecord(envelope *Envelope, v any) error {
	if envelope.Ver != envelopeVersion {
		return fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != SchemeCBOR {
		return fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}
	return Unmarshal(envelope.Payload, v)
}

// Clone returns a deep copy of e.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	return &Envelope{
		Ver:     e.Ver,
		Scheme:  e.Scheme,
		Payload: append([]byte(nil), e.Payload...),
	}
}
