package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/stratweave/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from models.EntityStatus
		to   models.EntityStatus
		want bool
	}{
		{
			name: "registered to validated",
			from: models.EntityStatusRegistered,
			to:   models.EntityStatusValidated,
			want: true,
		},
		{
			name: "registered to deployed",
			from: models.EntityStatusRegistered,
			to:   models.EntityStatusDeployed,
			want: true,
		},
		{
			name: "registered to active is not allowed directly",
			from: models.EntityStatusRegistered,
			to:   models.EntityStatusActive,
			want: false,
		},
		{
			name: "validated to deployed",
			from: models.EntityStatusValidated,
			to:   models.EntityStatusDeployed,
			want: true,
		},
		{
			name: "deployed to active",
			from: models.EntityStatusDeployed,
			to:   models.EntityStatusActive,
			want: true,
		},
		{
			name: "active and inactive flip both ways",
			from: models.EntityStatusActive,
			to:   models.EntityStatusInactive,
			want: true,
		},
		{
			name: "inactive back to active",
			from: models.EntityStatusInactive,
			to:   models.EntityStatusActive,
			want: true,
		},
		{
			name: "deprecated is terminal",
			from: models.EntityStatusDeprecated,
			to:   models.EntityStatusActive,
			want: false,
		},
		{
			name: "failed is terminal",
			from: models.EntityStatusFailed,
			to:   models.EntityStatusRegistered,
			want: false,
		},
		{
			name: "active cannot go back to registered",
			from: models.EntityStatusActive,
			to:   models.EntityStatusRegistered,
			want: false,
		},
		{
			name: "self transition is always permitted",
			from: models.EntityStatusDeprecated,
			to:   models.EntityStatusDeprecated,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.CanTransition(tt.from, tt.to))
		})
	}
}

func TestEntityType_Valid(t *testing.T) {
	assert.True(t, models.EntityTypeStrategy.Valid())
	assert.True(t, models.EntityTypeOptimizer.Valid())
	assert.False(t, models.EntityType("widget").Valid())
	assert.False(t, models.EntityType("").Valid())
}

func TestEnvironment_Valid(t *testing.T) {
	assert.True(t, models.EnvProduction.Valid())
	assert.True(t, models.EnvTesting.Valid())
	assert.False(t, models.Environment("qa").Valid())
	assert.False(t, models.Environment("").Valid())
}

func TestJSONMap_ValueAndScan(t *testing.T) {
	m := models.JSONMap{"threshold": 0.5, "window": map[string]interface{}{"size": float64(20)}}

	raw, err := m.Value()
	require.NoError(t, err)

	var decoded models.JSONMap
	require.NoError(t, decoded.Scan(raw))
	assert.Equal(t, 0.5, decoded["threshold"])

	nested, ok := decoded["window"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(20), nested["size"])
}

func TestJSONMap_ValueNil(t *testing.T) {
	var m models.JSONMap
	raw, err := m.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), raw)
}

func TestJSONMap_ScanNil(t *testing.T) {
	m := models.JSONMap{"k": "v"}
	require.NoError(t, m.Scan(nil))
	assert.Nil(t, map[string]interface{}(m))
}

func TestJSONMap_Clone(t *testing.T) {
	m := models.JSONMap{"limits": map[string]interface{}{"max_position": float64(100)}}

	clone := m.Clone()
	require.NotNil(t, clone)

	// Mutating the original must not leak into the clone.
	m["limits"].(map[string]interface{})["max_position"] = float64(999)
	assert.Equal(t, float64(100), clone["limits"].(map[string]interface{})["max_position"])

	assert.Nil(t, models.JSONMap(nil).Clone())
}

func TestStrPtr(t *testing.T) {
	assert.Nil(t, models.StrPtr(""))
	p := models.StrPtr("dep-1")
	require.NotNil(t, p)
	assert.Equal(t, "dep-1", *p)
}

func TestValidationResult(t *testing.T) {
	result := models.NewValidationResult()
	assert.True(t, result.Passed)

	result.AddPass("version")
	result.AddWarning("existing_deployment", "will be superseded")
	assert.True(t, result.Passed)
	assert.Len(t, result.Warnings, 1)

	result.AddError("entity_status", "not deployable")
	assert.False(t, result.Passed)
	assert.Equal(t, models.CheckFailed, result.Checks["entity_status"])
	assert.Equal(t, models.CheckWarning, result.Checks["existing_deployment"])
	assert.Equal(t, models.CheckPassed, result.Checks["version"])
}
