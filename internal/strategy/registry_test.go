package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register("early_entry", newEarlyEntry(nil))

	s, err := reg.Get("early_entry")
	require.NoError(t, err)
	assert.Equal(t, "early_entry", s.Name())

	_, err = reg.Get("momentum")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	reg.Register("b", newEarlyEntry(nil))
	reg.Register("a", newEarlyEntry(nil))

	assert.Equal(t, []string{"a", "b"}, reg.List())
}
