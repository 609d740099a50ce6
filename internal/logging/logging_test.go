package logging_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Narendra20078/AtomEdit/internal/logging"
)

func TestNew_BindsPeerField(t *testing.T) {
	entry := logging.New("alice")
	require.Equal(t, "alice", entry.Data["peer"])
}
