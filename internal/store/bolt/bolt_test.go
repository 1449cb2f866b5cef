package bolt

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foxzi/clientdesk/internal/store"
	"github.com/foxzi/clientdesk/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(filepath.Join(t.TempDir(), "data", "clientdesk.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestSize(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "size.db"))
	require.NoError(t, err)
	defer s.Close()

	if s.Size() <= 0 {
		t.Errorf("Size() = %d, want > 0", s.Size())
	}
}
