package serialization_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/loancob/pkg/batch/support/util/serialization"
)

func TestExecutionContext_NilAndStructuredValues(t *testing.T) {
	data, err := serialization.MarshalExecutionContext(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))

	type unit struct {
		MinID int64
		MaxID int64
	}
	data, err = serialization.MarshalExecutionContext(map[string]interface{}{"unit": unit{MinID: 1, MaxID: 10}})
	require.NoError(t, err)

	ctx, err := serialization.UnmarshalExecutionContext(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"MinID": float64(1), "MaxID": float64(10)}, ctx["unit"])
}

func TestUnmarshalExecutionContext_Empty(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("null")} {
		ctx, err := serialization.UnmarshalExecutionContext(data)
		require.NoError(t, err)
		assert.Empty(t, ctx)
		assert.NotNil(t, ctx)
	}
}

func TestUnmarshalJobParameters_InvalidJSON(t *testing.T) {
	_, err := serialization.UnmarshalJobParameters([]byte("{"))
	assert.ErrorContains(t, err, "Failed to deserialize JobParameters")
}

func TestNormalizeJobParameters(t *testing.T) {
	params, err := serialization.NormalizeJobParameters(map[string]interface{}{"businessDate": "2026-05-10", "catchUp": true, "size": 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"businessDate": "2026-05-10", "catchUp": true, "size": float64(3)}, params)
}

func TestFailures(t *testing.T) {
	data, err := serialization.MarshalFailures(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	data, err = serialization.MarshalFailures([]string{"a", "b"})
	require.NoError(t, err)
	msgs, err := serialization.UnmarshalFailures(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, msgs)

	msgs, err = serialization.UnmarshalFailures(nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
