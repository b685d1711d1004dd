package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBleveStore_SecondOpenFailsFast(t *testing.T) {
	orig := bleveOpenTimeout
	bleveOpenTimeout = 200 * time.Millisecond
	t.Cleanup(func() { bleveOpenTimeout = orig })

	path := filepath.Join(t.TempDir(), "keyword.bleve")
	first, err := NewBleveStore(path)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		second, err := NewBleveStore(path)
		if err == nil {
			second.Close()
		}
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrKeywordIndexLocked)
	case <-time.After(5 * time.Second):
		t.Fatal("second open still blocked")
	}

	require.NoError(t, first.Close())
	reopened, err := NewBleveStore(path)
	require.NoError(t, err)
	assert.NoError(t, reopened.Close())
}
