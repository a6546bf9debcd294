package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func TestErrNotFoundMessage(t *testing.T) {
	assert.Contains(t, ErrNotFound.Error(), "not found")
}
