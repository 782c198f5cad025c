package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fprint-service/internal/database"
	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// exerciseStore checks the behaviour every backend shares
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	a := PrintKey{DriverID: 7, DevType: 1, Finger: devicetypes.RightIndex}
	b := PrintKey{DriverID: 2, DevType: 0, Finger: devicetypes.LeftThumb}

	_, err := s.Load(ctx, a)
	assert.ErrorIs(t, err, driver.ErrPrintNotFound)
	assert.ErrorIs(t, s.Delete(ctx, a), driver.ErrPrintNotFound)

	require.NoError(t, s.Save(ctx, a, []byte{0x00, 0x07, 0x00, 0x01, 0xAA, 0xBB}))
	require.NoError(t, s.Save(ctx, b, []byte{0x00, 0x02, 0x00, 0x00, 0x01}))

	got, err := s.Load(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x07, 0x00, 0x01, 0xAA, 0xBB}, got)

	require.NoError(t, s.Save(ctx, a, []byte{0x00, 0x07, 0x00, 0x01, 0xCC}))
	got, err = s.Load(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x07, 0x00, 0x01, 0xCC}, got)

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []PrintKey{b, a}, keys)

	require.NoError(t, s.Delete(ctx, a))
	_, err = s.Load(ctx, a)
	assert.ErrorIs(t, err, driver.ErrPrintNotFound)

	keys, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []PrintKey{b}, keys)

	bad := PrintKey{DriverID: 7, DevType: 1, Finger: 11}
	assert.ErrorIs(t, s.Save(ctx, bad, []byte{1}), driver.ErrInvalidFinger)
	_, err = s.Load(ctx, PrintKey{DriverID: 7, DevType: 1})
	assert.ErrorIs(t, err, driver.ErrInvalidFinger)
	assert.ErrorIs(t, s.Delete(ctx, bad), driver.ErrInvalidFinger)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "prints"), zap.NewNop())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStoreLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, zap.NewNop())
	require.NoError(t, err)

	key := PrintKey{DriverID: 0x1a, DevType: 0x0102, Finger: devicetypes.RightLittle}
	require.NoError(t, s.Save(context.Background(), key, []byte{1, 2, 3, 4, 5}))

	data, err := os.ReadFile(filepath.Join(root, "001a", "0102", "a"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, data)
}

func TestFileStoreListIgnoresStrangers(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "notes", "0000"), 0o700))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0001", "0000", "3"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(root, "0001", "0000", "b"), []byte{1}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "0001", "0000", "README"), []byte{1}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "0001", "0000", "2"), []byte{1}, 0o600))

	keys, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []PrintKey{{DriverID: 1, DevType: 0, Finger: devicetypes.LeftIndex}}, keys)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("FPRINT_TEST_DSN")
	if dsn == "" {
		t.Skip("FPRINT_TEST_DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, database.NewMigrator(&database.DB{DB: db}, zap.NewNop()).Up())
	_, err = db.Exec(`TRUNCATE prints`)
	require.NoError(t, err)

	exerciseStore(t, NewPostgresStore(db, zap.NewNop()))
}
