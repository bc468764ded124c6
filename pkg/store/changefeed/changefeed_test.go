package changefeed_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worklin/worklin/pkg/store/changefeed"
)

func TestSubscribeRunsInitialRefresh(t *testing.T) {
	feed := changefeed.New()
	var calls atomic.Int32

	cancel := feed.Subscribe(nil, func() { calls.Add(1) })
	defer cancel()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPublishMatchesFilter(t *testing.T) {
	feed := changefeed.New()
	var calls atomic.Int32

	cancel := feed.Subscribe(changefeed.ForChildren(changefeed.Blocks, "page-1"), func() { calls.Add(1) })
	defer cancel()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	feed.Publish(changefeed.Change{Table: changefeed.Blocks, ID: "b1", Parent: "page-2"})
	feed.Publish(changefeed.Change{Table: changefeed.Pages, ID: "page-1"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	feed.Publish(changefeed.Change{Table: changefeed.Blocks, ID: "b1", Parent: "page-1"})
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestBurstCollapses(t *testing.T) {
	feed := changefeed.New()
	var calls atomic.Int32
	release := make(chan struct{})

	cancel := feed.Subscribe(nil, func() {
		if calls.Add(1) == 1 {
			<-release
		}
	})
	defer cancel()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 10; i++ {
		feed.Publish(changefeed.Change{Table: changefeed.Pages, ID: "p"})
	}
	close(release)

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCancelStopsDelivery(t *testing.T) {
	feed := changefeed.New()
	var calls atomic.Int32

	cancel := feed.Subscribe(nil, func() { calls.Add(1) })
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	cancel()
	assert.Equal(t, 0, feed.Len())

	feed.Publish(changefeed.Change{Table: changefeed.Pages, ID: "p"})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBroadcastIgnoresFilters(t *testing.T) {
	feed := changefeed.New()
	var blocks, pages atomic.Int32

	cancelBlocks := feed.Subscribe(changefeed.ForChildren(changefeed.Blocks, "page-1"), func() { blocks.Add(1) })
	defer cancelBlocks()
	cancelPages := feed.Subscribe(changefeed.ForRow(changefeed.Pages, "page-1"), func() { pages.Add(1) })
	defer cancelPages()
	require.Eventually(t, func() bool { return blocks.Load() == 1 && pages.Load() == 1 }, time.Second, 5*time.Millisecond)

	feed.Broadcast()
	require.Eventually(t, func() bool { return blocks.Load() == 2 && pages.Load() == 2 }, time.Second, 5*time.Millisecond)
}
