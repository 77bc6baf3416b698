package timeshift

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopResultOkSerialization(t *testing.T) {
	data, err := json.Marshal(Ok(0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":0}`, string(data))
}

func TestStopResultErrSerialization(t *testing.T) {
	data, err := json.Marshal(Err("msg"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"err":"msg"}`, string(data))
}
