//go:build integration

package integration_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFailure_CrashedFollowerPartitionsMove(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	c := newCluster(t, 8)
	for _, id := range []string{"consumer1", "consumer2", "consumer3", "consumer4"} {
		c.start(id)
	}
	c.waitConverged(10 * time.Second)

	leader := c.waitOneLeader(5 * time.Second)
	var victim *process
	for _, p := range c.procs {
		if p != leader {
			victim = p
			break
		}
	}
	require.NotNil(t, victim)
	c.crash(victim)

	c.waitConverged(15 * time.Second)
	require.NotContains(t, c.ownership(), victim.id)

	ids := c.produce(2)
	c.waitDelivered(ids, 15*time.Second)
}

func TestFailure_RollingRestart(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	c := newCluster(t, 6)
	for _, id := range []string{"consumer1", "consumer2", "consumer3"} {
		c.start(id)
	}
	c.waitConverged(10 * time.Second)

	for _, id := range []string{"consumer1", "consumer2", "consumer3"} {
		for _, p := range c.procs {
			if p.id == id {
				c.stop(p)
				break
			}
		}
		c.waitConverged(10 * time.Second)

		c.start(id + "-restarted")
		c.waitConverged(10 * time.Second)
	}

	ids := c.produce(2)
	c.waitDelivered(ids, 15*time.Second)
}
