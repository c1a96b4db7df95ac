package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "migrate"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestMigrateCommand_AppliesSchemaToSQLite(t *testing.T) {
	t.Setenv("USERMGR_APP_ENV", "test")
	t.Setenv("USERMGR_JWT_SECRET_KEY", "migrate-secret")
	t.Setenv("USERMGR_STORAGE_DRIVER", "sqlite")
	t.Setenv("USERMGR_SQLITE_DSN", "file:cmd_migrate?mode=memory&cache=shared")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"migrate"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Migrations completed successfully")
}

func TestMigrateCommand_RejectsInvalidConfig(t *testing.T) {
	t.Setenv("USERMGR_JWT_SECRET_KEY", "")
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("USERMGR_STORAGE_DRIVER", "oracle")

	cmd := NewRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"migrate"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
