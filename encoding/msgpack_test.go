package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshal_Struct(t *testing.T) {
	t.Parallel()

	type sample struct {
		TID  uint64 `msgpack:"tid"`
		Slot int    `msgpack:"slot"`
		Op   string `msgpack:"op"`
	}

	in := sample{TID: 42, Slot: 7, Op: "write"}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestMarshalUnmarshal_IntSlice(t *testing.T) {
	t.Parallel()

	in := []int{0, 1, 1, 0, 1}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out []int
	require.NoError(t, Unmarshal(data, &out))
	require.Equal(t, in, out)
}

func TestUnmarshal_LooseStrings(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]interface{}{"op": "commit"})
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, Unmarshal(data, &out))
	require.Equal(t, "commit", out["op"])
}
