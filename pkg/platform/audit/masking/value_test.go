package masking

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsOrderAndNumberText(t *testing.T) {
	raw := `{"z":1,"a":1.50,"m":[1e3,-0]}`

	v, err := Parse([]byte(raw))
	require.NoError(t, err)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, raw, string(out))
}

func TestParse_RejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`{"a":`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var holder struct {
		Payload Value `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"payload":{"k":"v","n":[1]}}`), &holder))

	got, ok := holder.Payload.Get("k")
	require.True(t, ok)
	assert.Equal(t, KindString, got.Kind())
	assert.Equal(t, "v", got.Text())
}
