package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func useTempDatabase(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_CONNECTION", "file:"+filepath.Join(t.TempDir(), "bulwark.db"))
}

func TestRunLifecycleCommands(t *testing.T) {
	useTempDatabase(t)

	assert.Equal(t, 0, run([]string{"migrate"}))
	assert.Equal(t, 0, run([]string{"migrate"}), "migrations are idempotent")
	assert.Equal(t, 0, run([]string{"rotate-key"}))
	assert.Equal(t, 0, run([]string{"rotate-key"}))
	assert.Equal(t, 0, run([]string{"sweep"}))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	useTempDatabase(t)
	t.Setenv("DB_DRIVER", "mysql")

	assert.Equal(t, 1, run([]string{"migrate"}))
}

func TestRunUnknownCommand(t *testing.T) {
	assert.NotEqual(t, 0, run([]string{"does-not-exist"}))
}
