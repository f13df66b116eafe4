package devicelock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := Path(t.TempDir(), "sim", "")

	l, err := Acquire(path)
	require.NoError(t, err)

	_, err = Acquire(path)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, l.Release())

	l2, err := Acquire(path)
	require.NoError(t, err)
	assert.NoError(t, l2.Release())
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/run", "vftune-sim.lock"), Path("/run", "sim", ""))
	assert.Equal(t, filepath.Join("/run", "vftune-sim-_tmp_profile.yaml.lock"), Path("/run", "sim", "/tmp/profile.yaml"))
}
