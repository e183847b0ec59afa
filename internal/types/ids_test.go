package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_IsValidAndUnique(t *testing.T) {
	a := NewID()
	b := NewID()

	assert.NoError(t, a.Validate())
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
}

func TestParseID(t *testing.T) {
	id, err := ParseID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", id.String())

	_, err = ParseID("")
	assert.Error(t, err)
	_, err = ParseID("not-a-uuid")
	assert.Error(t, err)
}

func TestID_Short(t *testing.T) {
	id := ID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t, "6ba7b810", id.Short())
	assert.Equal(t, "abc", ID("abc").Short())
}

func TestID_JSON(t *testing.T) {
	id := NewID()
	data, err := json.Marshal(id)
	require.NoError(t, err)

	var decoded ID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded)
}

func TestID_JSONZeroIsNull(t *testing.T) {
	data, err := json.Marshal(ID(""))
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	var decoded ID
	require.NoError(t, json.Unmarshal([]byte("null"), &decoded))
	assert.True(t, decoded.IsZero())
}

func TestID_JSONRejectsInvalid(t *testing.T) {
	var decoded ID
	assert.Error(t, json.Unmarshal([]byte(`"not-a-uuid"`), &decoded))
}
