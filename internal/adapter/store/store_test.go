package store

import (
	"testing"

	"github.com/berfenger/solaxgw2mqtt/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func checkStore(t *testing.T, s port.EntityStateStore) {

	require := require.New(t)

	sw, err := s.LoadSwitch("grid_manual_mode")
	require.NoError(err)
	require.Nil(sw)

	require.NoError(s.SaveSwitch("grid_manual_mode", true))
	sw, err = s.LoadSwitch("grid_manual_mode")
	require.NoError(err)
	require.NotNil(sw)
	require.True(*sw)

	require.NoError(s.SaveSwitch("grid_manual_mode", false))
	sw, err = s.LoadSwitch("grid_manual_mode")
	require.NoError(err)
	require.False(*sw)

	n, err := s.LoadNumber("grid_manual_power_demand")
	require.NoError(err)
	require.Nil(n)

	require.NoError(s.SaveNumber("grid_manual_power_demand", 275.5))
	n, err = s.LoadNumber("grid_manual_power_demand")
	require.NoError(err)
	require.Equal(275.5, *n)

	require.NoError(s.Close())
}

func TestMemoryStore(t *testing.T) {
	checkStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", zap.NewNop())
	require.NoError(t, err)
	checkStore(t, s)
}

func TestNewStateStore(t *testing.T) {

	assert := assert.New(t)

	s, err := NewStateStore("", "", zap.NewNop())
	assert.NoError(err)
	assert.IsType(&MemoryStore{}, s)

	_, err = NewStateStore("redis", "", zap.NewNop())
	assert.Error(err)
}
