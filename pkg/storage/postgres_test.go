package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOpen_UnreachableServer(t *testing.T) {
	_, err := Open(context.Background(), Config{
		URL:     "postgres://nobody@127.0.0.1:1/none?sslmode=disable",
		Timeout: 500 * time.Millisecond,
	})
	assert.Error(t, err)
}
