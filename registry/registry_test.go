package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/gocab/decode"
	"github.com/google/gocab/registry"
)

type nopSource struct{}

func (nopSource) NextBlock() ([]byte, int, error) { return nil, 0, nil }

func TestDefaultRegistryHasBuiltins(t *testing.T) {
	for _, name := range []string{"none", "lzss", "mszip", "quantum", "lzx"} {
		assert.True(t, registry.Default.Registered(name, registry.Decoder), "decoder %q", name)
	}
	// quantum has no encoder, by design.
	for _, name := range []string{"none", "lzss", "mszip", "lzx"} {
		assert.True(t, registry.Default.Registered(name, registry.Encoder), "encoder %q", name)
	}
}

func TestCreateByName(t *testing.T) {
	inst, err := registry.Default.Create("none", registry.Decoder, map[string]interface{}{
		registry.ParamSource: decode.BlockSource(nopSource{}),
	})
	require.NoError(t, err)
	_, ok := inst.(decode.Decoder)
	assert.True(t, ok)
}

func TestCreateByNumericTag(t *testing.T) {
	inst, err := registry.Default.Create(1, registry.Decoder, map[string]interface{}{
		registry.ParamSource: decode.BlockSource(nopSource{}),
	})
	require.NoError(t, err)
	_, ok := inst.(decode.Decoder)
	assert.True(t, ok)
}

func TestCreateUnknownNumericTag(t *testing.T) {
	_, err := registry.Default.Create(99, registry.Decoder, nil)
	assert.ErrorIs(t, err, registry.ErrBadNumericTag)
}

func TestCreateUnregisteredName(t *testing.T) {
	_, err := registry.Default.Create("not-a-real-codec", registry.Decoder, nil)
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestQuantumEncoderNotRegistered(t *testing.T) {
	_, err := registry.Default.Create("quantum", registry.Encoder, nil)
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestRegisterDuplicateRejected(t *testing.T) {
	r := registry.New()
	ctor := func(map[string]interface{}) (interface{}, error) { return nil, nil }
	require.NoError(t, r.Register("dup", registry.Decoder, 0, -1, ctor))
	err := r.Register("dup", registry.Decoder, 0, -1, ctor)
	assert.ErrorIs(t, err, registry.ErrAlreadyRegistered)
}

func TestUnregisterRemovesEntry(t *testing.T) {
	r := registry.New()
	ctor := func(map[string]interface{}) (interface{}, error) { return nil, nil }
	require.NoError(t, r.Register("tmp", registry.Decoder, 0, -1, ctor))
	require.True(t, r.Registered("tmp", registry.Decoder))
	r.Unregister("tmp", registry.Decoder)
	assert.False(t, r.Registered("tmp", registry.Decoder))
}

func TestPerInstanceRegistryIsolated(t *testing.T) {
	r := registry.New()
	assert.False(t, r.Registered("none", registry.Decoder))
}
