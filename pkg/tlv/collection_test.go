package tlv

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionDecode(t *testing.T) {
	c := MustCollection("records", testApp, testVersion)

	elems, err := c.Decode(Hex("61 03 87 01 01", "9F70 01 02", "61 03 87 01 03", "FF FF"))
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"application", "version", "application"}, elems.Names()); diff != "" {
		t.Errorf("Mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, elems.All("application"), 2)

	v, ok := elems.First("version")
	require.True(t, ok)
	assert.Equal(t, uint64(2), v.Value)

	_, ok = elems.First("directory")
	assert.False(t, ok)

	out, err := c.Encode(elems)
	require.NoError(t, err)
	assert.Equal(t, Hex("61 03 87 01 01", "9F70 01 02", "61 03 87 01 03"), out)
}

func TestCollectionErrors(t *testing.T) {
	c := MustCollection("records", testApp)

	t.Run("Unexpected Top Level", func(t *testing.T) {
		_, err := c.Decode(Hex("9F70 01 02"))
		assert.ErrorIs(t, err, ErrUnexpectedElement)
	})

	t.Run("Unknown Nested Keeps Its Kind", func(t *testing.T) {
		_, err := c.Decode(Hex("61 01 9F"))
		assert.ErrorIs(t, err, ErrMalformedTag)

		_, err = c.Decode(Hex("61 03 84 01 01"))
		assert.ErrorIs(t, err, ErrUnknownTag)
	})

	t.Run("Passthrough", func(t *testing.T) {
		elems, err := c.Decode(Hex("9F70 01 02"), AllowUnknown())
		require.NoError(t, err)
		assert.Equal(t, []string{"unknown_9F70"}, elems.Names())
	})

	t.Run("Data After Padding", func(t *testing.T) {
		_, err := c.Decode(Hex("61 00 00 61 00"))
		assert.ErrorIs(t, err, ErrMalformedLength)
	})

	t.Run("Encode Foreign Element", func(t *testing.T) {
		_, err := c.Encode(Elements{New(testVersion, uint64(1))})
		assert.ErrorIs(t, err, ErrUnexpectedElement)
	})

	t.Run("Empty", func(t *testing.T) {
		elems, err := c.Decode(nil)
		require.NoError(t, err)
		assert.Empty(t, elems)
	})
}

func TestNewCollectionConflict(t *testing.T) {
	_, err := NewCollection("dup", testApp, Constructed("other", 0x61, testAID))
	assert.ErrorIs(t, err, ErrDescriptorConflict)
}

func TestCollectionAsCodec(t *testing.T) {
	codec := MustCollection("records", testApp).AsCodec()

	v, err := codec.Decode(Hex("61 03 87 01 01"))
	require.NoError(t, err)
	elems, ok := v.(Elements)
	require.True(t, ok)
	assert.Equal(t, []string{"application"}, elems.Names())

	out, err := codec.Encode(elems)
	require.NoError(t, err)
	assert.Equal(t, Hex("61 03 87 01 01"), out)

	_, err = codec.Encode("not elements")
	assert.ErrorIs(t, err, ErrInvalidValue)
}
