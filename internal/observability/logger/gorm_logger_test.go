package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT value FROM sync_offsets":                          "SELECT",
		"  update sync_offsets SET value = value + 1":             "UPDATE",
		"WITH x AS (SELECT 1) INSERT INTO sync_document_runs ...": "SELECT",
		"":                           "UNKNOWN",
		"PRAGMA busy_timeout = 5000": "UNKNOWN",
	}
	for sql, want := range cases {
		assert.Equal(t, want, operationFromSQL(sql), sql)
	}
}
