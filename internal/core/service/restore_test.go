package service

import (
	"testing"

	"github.com/berfenger/solaxgw2mqtt/internal/adapter/store"
	"github.com/berfenger/solaxgw2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestoreModeResolve(t *testing.T) {

	assert := assert.New(t)

	on, off := true, false
	assert.False(domain.RESTORE_DEFAULT_OFF.Resolve(nil))
	assert.True(domain.RESTORE_DEFAULT_OFF.Resolve(&on))
	assert.True(domain.RESTORE_DEFAULT_ON.Resolve(nil))
	assert.False(domain.RESTORE_DEFAULT_ON.Resolve(&off))
	assert.True(domain.ALWAYS_ON.Resolve(&off))
	assert.False(domain.ALWAYS_OFF.Resolve(&on))

	mode, err := domain.ParseRestoreMode("always_on")
	assert.NoError(err)
	assert.Equal(domain.ALWAYS_ON, mode)
	mode, err = domain.ParseRestoreMode("")
	assert.NoError(err)
	assert.Equal(domain.RESTORE_DEFAULT_OFF, mode)
	_, err = domain.ParseRestoreMode("sometimes")
	assert.Error(err)
}

func TestRestoreControlsWithoutStoredState(t *testing.T) {

	require := require.New(t)

	controls, err := RestoreControls(store.NewMemoryStore(), testGatewayConfig(), GatewayRestoreConfig{
		ManualMode:         domain.RESTORE_DEFAULT_OFF,
		EmergencyOff:       domain.RESTORE_DEFAULT_ON,
		DemandInitialValue: 50,
		DemandRestoreValue: true,
	})
	require.NoError(err)
	require.Equal(domain.ControlInputs{ManualMode: false, EmergencyOff: true, ManualPowerDemand: 50}, controls)
}

func TestPersistAndRestoreControls(t *testing.T) {

	require := require.New(t)

	s := store.NewMemoryStore()
	cfg := testGatewayConfig()
	require.NoError(PersistControls(s, cfg, domain.ControlInputs{ManualMode: true, EmergencyOff: false, ManualPowerDemand: 330}))

	restore := GatewayRestoreConfig{
		ManualMode:         domain.RESTORE_DEFAULT_OFF,
		EmergencyOff:       domain.ALWAYS_ON,
		DemandInitialValue: 0,
		DemandRestoreValue: true,
	}
	controls, err := RestoreControls(s, cfg, restore)
	require.NoError(err)
	require.True(controls.ManualMode)
	require.True(controls.EmergencyOff)
	require.Equal(float64(330), controls.ManualPowerDemand)

	// restore_value disabled keeps the initial value
	restore.DemandRestoreValue = false
	restore.DemandInitialValue = 10
	controls, err = RestoreControls(s, cfg, restore)
	require.NoError(err)
	require.Equal(float64(10), controls.ManualPowerDemand)
}

func TestRestoreControlsWithoutStore(t *testing.T) {

	controls, err := RestoreControls(nil, testGatewayConfig(), GatewayRestoreConfig{
		ManualMode:         domain.RESTORE_DEFAULT_ON,
		DemandInitialValue: 20,
		DemandRestoreValue: true,
	})
	assert.NoError(t, err)
	assert.True(t, controls.ManualMode)
	assert.Equal(t, float64(20), controls.ManualPowerDemand)
	assert.NoError(t, PersistControls(nil, testGatewayConfig(), controls))
}
