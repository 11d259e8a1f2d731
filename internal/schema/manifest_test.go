package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest_FillsDefaults(t *testing.T) {
	m, err := ParseManifest([]byte("seeds: [seed.sql]\n"))
	require.NoError(t, err)

	def := DefaultManifest()
	assert.Equal(t, def.Primary, m.Primary)
	assert.Equal(t, def.Sync, m.Sync)
	assert.Equal(t, DefaultRequiredTables, m.RequiredTables)
	assert.Equal(t, []string{"seed.sql"}, m.Seeds)
	assert.Empty(t, m.Extensions)
}

func TestParseManifest_Records(t *testing.T) {
	m, err := ParseManifest([]byte(`
records:
  - table: system_config
    values:
      config_key: admin_password
      config_value: ""
`))
	require.NoError(t, err)
	require.Len(t, m.Records, 1)
	assert.Equal(t, "system_config", m.Records[0].Table)
	assert.Equal(t, map[string]string{"config_key": "admin_password", "config_value": ""}, m.Records[0].Values)
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := map[string]string{
		"broken yaml":           "primary: [",
		"record without table":  "records:\n  - values: {a: b}\n",
		"record without values": "records:\n  - table: t\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(data))
			assert.Error(t, err)
		})
	}
}
