package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyteller/internal/infra"
	"storyteller/internal/infra/pgxfake"
	"storyteller/internal/queue/pgqueue"
)

func TestOpenPostgresPublisher(t *testing.T) {
	cfg := &infra.Config{QueueDriver: DriverPostgres, QueuePrefetch: 2}
	tr, err := Open(context.Background(), cfg, &pgxfake.Executor{}, infra.NopLogger())
	require.NoError(t, err)
	defer tr.Close()

	assert.Equal(t, DriverPostgres, tr.Driver)
	assert.IsType(t, &pgqueue.Publisher{}, tr.Publisher)
}

func TestOpenRejectsBadSetups(t *testing.T) {
	_, err := Open(context.Background(), nil, nil, infra.NopLogger())
	assert.Error(t, err)

	_, err = Open(context.Background(), &infra.Config{QueueDriver: DriverPostgres}, nil, infra.NopLogger())
	assert.Error(t, err)

	_, err = Open(context.Background(), &infra.Config{QueueDriver: "kafka"}, nil, infra.NopLogger())
	assert.ErrorContains(t, err, "kafka")
}
