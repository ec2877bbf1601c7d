package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string    `cbor:"name"`
	At   time.Time `cbor:"at"`
	N    int       `cbor:"n"`
}

func TestSealOpenRecord(t *testing.T) {
	in := sample{Name: "x", At: time.Unix(1700000000, 0).UTC(), N: 3}
	env, err := SealRecord(in)
	require.NoError(t, err)
	assert.Equal(t, SchemeCBOR, env.Scheme)

	var out sample
	require.NoError(t, OpenRecord(env, &out))
	assert.Equal(t, in.Name, out.Name)
	assert.True(t, in.At.Equal(out.At))
	assert.Equal(t, in.N, out.N)
}

func TestOpenRecord_RejectsUnknownEnvelope(t *testing.T) {
	var out sample
	assert.Error(t, OpenRecord(&Envelope{Ver: 2, Scheme: SchemeCBOR}, &out))
	assert.Error(t, OpenRecord(&Envelope{Ver: 1, Scheme: "json"}, &out))
}

func TestMarshalDeterministic(t *testing.T) {
	m := map[string]int{"b": 2, "a": 1, "c": 3}
	first, err := Marshal(m)
	require.NoError(t, err)
	for range 10 {
		again, err := Marshal(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEnvelopeClone(t *testing.T) {
	env := &Envelope{Ver: 1, Scheme: SchemeCBOR, Payload: []byte{1, 2}}
	c := env.Clone()
	c.Payload[0] = 9
	assert.Equal(t, byte(1), env.Payload[0])
	assert.Nil(t, (*Envelope)(nil).Clone())
}
