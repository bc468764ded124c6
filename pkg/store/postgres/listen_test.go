package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerStatements(t *testing.T) {
	stmts := triggerStatements("blocks", "page_id")
	require.Len(t, stmts, 2)
	assert.Equal(t, "DROP TRIGGER IF EXISTS worklin_blocks_notify ON blocks", stmts[0])
	assert.Contains(t, stmts[1], "AFTER INSERT OR UPDATE OR DELETE ON blocks")
	assert.Contains(t, stmts[1], "worklin_notify_change('page_id')")
}

func TestNotifyFunctionUsesChannel(t *testing.T) {
	assert.Contains(t, notifyFunction, "pg_notify('worklin_changes'")
	assert.Contains(t, notifyFunction, "TG_ARGV[0]")
}
