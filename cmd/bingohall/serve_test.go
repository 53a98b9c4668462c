package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/bingohall/internal/server"
)

func TestServeOverride(t *testing.T) {
	t.Parallel()
	cmd := &ServeCmd{Addr: "127.0.0.1:4000", DSN: "postgres://x"}
	cfg := server.DefaultConfig()
	require.NoError(t, cmd.override(cfg))
	assert.Equal(t, "127.0.0.1:4000", cfg.ListenAddress())
	assert.Equal(t, "postgres://x", cfg.Database.DSN)

	cmd = &ServeCmd{Addr: "nonsense"}
	assert.Error(t, cmd.override(server.DefaultConfig()))
}
