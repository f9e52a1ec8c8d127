package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMap_ScanValue(t *testing.T) {
	in := JSONMap{"attempt": float64(2), "from": "terminal-1"}
	v, err := in.Value()
	require.NoError(t, err)

	var out JSONMap
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan(`{"k":"v"}`))
	assert.Equal(t, "v", out["k"])

	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out)

	assert.Error(t, out.Scan(42))
}

func TestJSONStringArray_ScanValue(t *testing.T) {
	in := JSONStringArray{"compiler crashed", "permission denied"}
	v, err := in.Value()
	require.NoError(t, err)

	var out JSONStringArray
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	var empty JSONStringArray
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestJSONArray_ScanValue(t *testing.T) {
	in := JSONArray{{"terminal_id": "terminal-1"}, {"terminal_id": "terminal-2"}}
	v, err := in.Value()
	require.NoError(t, err)

	var out JSONArray
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)
}
