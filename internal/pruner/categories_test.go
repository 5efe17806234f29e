package pruner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
)

func TestClassify(t *testing.T) {
	c := DefaultCatalog()
	tests := []struct {
		name string
		want string
	}{
		{name: "Papel Higiénico 12 rolos", want: "household"},
		{name: "Leite Infantil 800g", want: "baby"},
		{name: "Leite Meio Gordo 1L", want: "dairy"},
		{name: "Salmão Fresco", want: "meat_fish"},
		{name: "Sal Grosso 1kg", want: "pantry"},
		{name: "Champô Anticaspa", want: "personal_care"},
		{name: "Vela aromática", want: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.name).Name)
		})
	}
}

func TestHouseholdOutlastsPerishables(t *testing.T) {
	c := DefaultCatalog()
	household, ok := c.Lookup("household")
	require.True(t, ok)
	for _, perishable := range []string{"bakery", "produce", "dairy", "meat_fish"} {
		cat, ok := c.Lookup(perishable)
		require.True(t, ok, perishable)
		assert.Greater(t, household.CadenceDays, cat.CadenceDays, perishable)
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cats.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default:
  cadenceDays: 9
categories:
  - name: coffee
    cadenceDays: 20
    keywords: [cafe, coffee]
`), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, "other", c.Default.Name)
	assert.Equal(t, 20.0, c.Classify("Café Moído").CadenceDays)
	assert.Equal(t, 9.0, c.Classify("Leite").CadenceDays)

	def, err := LoadCatalog("")
	require.NoError(t, err)
	assert.NotEmpty(t, def.Categories)
}

func TestLoadCatalogErrors(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, errs.CategoryIOFailure, errs.CategoryOf(err))

	_, err = ParseCatalog([]byte("default: {cadenceDays: 0}"))
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = ParseCatalog([]byte(`
default: {cadenceDays: 5}
categories:
  - {name: a, cadenceDays: 1}
  - {name: A, cadenceDays: 2}
`))
	require.Error(t, err)
}
