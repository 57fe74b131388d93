package provisioner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name, sql string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644))
}

func TestLoadMigrations_SortedByVersion(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "010_add_allergies.sql", "CREATE TABLE allergies (id UUID);")
	writeMigration(t, dir, "001_create_departments.sql", "CREATE TABLE departments (id UUID);")
	writeMigration(t, dir, "002_create_patients.sql", "CREATE TABLE patients (id UUID);")

	m := &Migrator{dir: dir}
	migrations, err := m.LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 10, migrations[2].Version)
	assert.Equal(t, "001_create_departments.sql", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "departments")
}

func TestLoadMigrations_IgnoresNonMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_create_departments.sql", "CREATE TABLE departments (id UUID);")
	writeMigration(t, dir, "README.md", "notes")
	writeMigration(t, dir, "notaversion_table.sql", "SELECT 1;")
	writeMigration(t, dir, "nounderscore.sql", "SELECT 1;")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive"), 0o755))

	m := &Migrator{dir: dir}
	migrations, err := m.LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	assert.Equal(t, "001_create_departments.sql", migrations[0].Name)
}

func TestLoadMigrations_MissingDirectory(t *testing.T) {
	m := &Migrator{dir: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := m.LoadMigrations()
	assert.Error(t, err)
}
