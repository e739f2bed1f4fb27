package notify_test

import (
	"testing"

	"github.com/kiranshivaraju/chronoguard/internal/config"
	"github.com/kiranshivaraju/chronoguard/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDispatcher_Log(t *testing.T) {
	d, err := notify.NewDispatcher(config.NotifyConfig{Provider: "log"})
	require.NoError(t, err)
	assert.Equal(t, "log", d.Name())
	assert.NoError(t, d.Close())
}

func TestNewDispatcher_EmptyDefaultsToLog(t *testing.T) {
	d, err := notify.NewDispatcher(config.NotifyConfig{})
	require.NoError(t, err)
	assert.Equal(t, "log", d.Name())
}

func TestNewDispatcher_Unknown(t *testing.T) {
	d, err := notify.NewDispatcher(config.NotifyConfig{Provider: "pager"})
	require.Error(t, err)
	assert.Nil(t, d)
	assert.Contains(t, err.Error(), "unknown notify provider")
	assert.Contains(t, err.Error(), "pager")
}
