package stress_test

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/partigroup"
	"github.com/arloliu/partigroup/test/testutil"
	partitest "github.com/arloliu/partigroup/testing"
)

// TestScale_Members measures how long a group of N members takes to settle
// on a consistent, balanced assignment of 128 partitions.
func TestScale_Members(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping scale test in short mode")
	}
	requireStressEnabled(t)

	const partitions = 128

	for _, members := range []int{1, 5, 10, 25} {
		t.Run(fmt.Sprintf("%dm", members), func(t *testing.T) {
			ns, _ := partitest.StartEmbeddedNATS(t)
			goroutinesBefore := runtime.NumGoroutine()

			subs := make(map[string]*partigroup.Subscription, members)
			start := time.Now()
			for i := range members {
				cfg := partigroup.TestConfig(partitions)
				id := fmt.Sprintf("member%d", i)
				c, err := partigroup.NewConsumer(&cfg, partitest.Connect(t, ns), partigroup.WithConsumerID(id))
				require.NoError(t, err)
				t.Cleanup(func() { _ = c.Close(context.Background()) })

				sub, err := c.Subscribe(t.Context(), "scale", []string{"events"}, func(context.Context, *partigroup.Message) error {
					return nil
				})
				require.NoError(t, err)
				subs[id] = sub
			}

			ownership := func() map[string][]int {
				out := make(map[string][]int, len(subs))
				for id, s := range subs {
					out[id] = s.Partitions().Slice()
				}

				return out
			}
			require.Eventually(t, func() bool {
				return testutil.CheckAssignmentsConsistent(ownership(), partitions) == nil
			}, 60*time.Second, 50*time.Millisecond)
			testutil.AssertAssignmentsBalanced(t, ownership())

			t.Logf("members=%d settled in %v, goroutines %d -> %d",
				members, time.Since(start), goroutinesBefore, runtime.NumGoroutine())
		})
	}
}
