package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreGooseAnnotated(t *testing.T) {
	files, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.Len(t, files, 3)
	for _, name := range files {
		body, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		require.Contains(t, string(body), "-- +goose Up", name)
		require.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestDispenseUniquenessConstraintName(t *testing.T) {
	body, err := fs.ReadFile(FS, "00001_pharmacy.sql")
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "prescription_dispenses_prescription_id_key"))
}
