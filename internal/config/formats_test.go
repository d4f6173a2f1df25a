package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/lidar-ingest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFormats_Builtin(t *testing.T) {
	f, err := LoadFormats("")
	require.NoError(t, err)

	assert.Equal(t, []string{"galion", "windcube_v1", "windcube_v2", "windscanner", "zephir300"}, f.Names())
	assert.Equal(t, []string{"rtd", "sta"}, f.Products("windcube_v1"))
	assert.Equal(t, []string{"one_second", "ten_minute"}, f.Products("zephir300"))
	assert.Equal(t, "42", f.Parameters("galion")["n_gates"])
}

func TestFormats_Table(t *testing.T) {
	f, err := LoadFormats("")
	require.NoError(t, err)

	table, err := f.Table("windcube_v1", "sta")
	require.NoError(t, err)

	assert.Equal(t, "Date", table.Time.Column)
	assert.Equal(t, []string{"02/01/2006 15:04:05"}, table.Time.Layouts)
	require.NotEmpty(t, table.Rules)
	ws := table.Rules[0]
	assert.Equal(t, "WS", ws.Name)
	assert.Equal(t, []string{domain.DimTime, domain.DimRange}, ws.Dims)
	assert.True(t, ws.Required)
	assert.Contains(t, ws.Attrs, domain.Attribute{Key: "units", Value: "m.s-1"})

	for _, r := range table.Rules {
		if r.Name == "T_internal" {
			assert.Equal(t, []string{domain.DimTime}, r.Dims, "dims default to time")
			assert.Equal(t, "Tm", r.Column)
		}
	}
}

func TestFormats_TableEpoch(t *testing.T) {
	f, err := LoadFormats("")
	require.NoError(t, err)

	table, err := f.Table("windscanner", "wind")
	require.NoError(t, err)

	require.NotNil(t, table.Time.Epoch)
	assert.True(t, domain.Epoch1904.Equal(*table.Time.Epoch))
}

func TestFormats_TableStringType(t *testing.T) {
	f, err := LoadFormats("")
	require.NoError(t, err)

	table, err := f.Table("windcube_v1", "rtd")
	require.NoError(t, err)
	for _, r := range table.Rules {
		if r.Name == "wiper_state" {
			assert.Equal(t, domain.String, r.Type)
			return
		}
	}
	t.Fatal("wiper_state rule not found")
}

func TestFormats_TableUnknown(t *testing.T) {
	f, err := LoadFormats("")
	require.NoError(t, err)

	_, err = f.Table("leosphere", "sta")
	assert.ErrorContains(t, err, "not configured")
	_, err = f.Table("windcube_v1", "hdf")
	assert.ErrorContains(t, err, "no product")
}

func TestLoadFormats_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "formats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
formats:
  custom:
    parameters: {site: lab}
    products:
      csv:
        time: {column: ts, layouts: ["2006-01-02T15:04:05"]}
        variables:
          - {name: WS, dims: [time, range], contains: "ws_", required: true}
`), 0o600))

	f, err := LoadFormats(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"custom"}, f.Names())
	assert.Equal(t, "lab", f.Parameters("custom")["site"])
}

func TestParseFormats_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "formats: {}", "no formats"},
		{"column and contains", `
formats:
  x:
    products:
      p:
        time: {column: t, layouts: ["2006"]}
        variables: [{name: a, column: c, contains: d}]`, "exactly one of"},
		{"missing time", `
formats:
  x:
    products:
      p:
        variables: [{name: a, column: c}]`, "time column"},
		{"bad type", `
formats:
  x:
    products:
      p:
        time: {column: t, layouts: ["2006"]}
        variables: [{name: a, column: c, type: complex}]`, "unknown type"},
		{"range only dims", `
formats:
  x:
    products:
      p:
        time: {column: t, layouts: ["2006"]}
        variables: [{name: a, column: c, dims: [range]}]`, "indexed by time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFormats([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
