package main

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/app"
	"github.com/pscheid92/pollpulse/internal/broadcast"
	"github.com/pscheid92/pollpulse/internal/poll"
	"github.com/stretchr/testify/assert"
)

func TestDrainingHealthCheck(t *testing.T) {
	var draining atomic.Bool
	check := drainingHealthCheck(&draining)

	assert.NoError(t, check(context.Background()))

	draining.Store(true)
	assert.ErrorIs(t, check(context.Background()), errShuttingDown)
}

func TestStoreHealthCheck(t *testing.T) {
	clock := clockwork.NewFakeClock()
	engine := app.NewEngine(poll.NewStore(clock, 0), broadcast.NewRegistry(broadcast.Options{}, nil), clock, nil, false)

	assert.NoError(t, storeHealthCheck(engine)(context.Background()))
}
