package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/inkwell/internal/common"
)

func TestNewBadgerDB_SecondOpenReportsLock(t *testing.T) {
	logger := arbor.NewLogger()
	config := &common.BadgerConfig{Path: t.TempDir()}

	db, err := NewBadgerDB(logger, config)
	require.NoError(t, err)
	defer db.Close()

	_, err = NewBadgerDB(logger, config)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatabaseLocked)
	assert.Contains(t, err.Error(), "stop serve first")
}

func TestNewBadgerDB_ReopenAfterClose(t *testing.T) {
	logger := arbor.NewLogger()
	config := &common.BadgerConfig{Path: t.TempDir()}

	db, err := NewBadgerDB(logger, config)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewBadgerDB(logger, config)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}
