package posemux

import (
	"bufio"
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackpose/internal/pose"
)

func testFrame(seq uint64) Frame {
	return Frame{
		Seq:       seq,
		Timestamp: time.Unix(0, int64(seq)*int64(10*time.Millisecond)),
		Indices:   []uint32{0},
		Records:   []pose.PoseRecord{pose.NewPoseRecord(pose.IdentityTransform())},
	}
}

func TestMux_PublishToSubscribers(t *testing.T) {
	m := New()
	id1, c1 := m.Subscribe()
	_, c2 := m.Subscribe()
	require.Equal(t, 2, m.SubscriberCount())

	m.Publish(testFrame(1))

	assert.Equal(t, uint64(1), (<-c1).Seq)
	assert.Equal(t, uint64(1), (<-c2).Seq)

	m.Unsubscribe(id1)
	_, ok := <-c1
	assert.False(t, ok, "unsubscribed channel should be closed")
	assert.Equal(t, 1, m.SubscriberCount())

	// unknown IDs are ignored
	m.Unsubscribe("missing")
}

func TestMux_SlowSubscriberDropsFrames(t *testing.T) {
	m := New()
	_, c := m.Subscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		m.Publish(testFrame(uint64(i)))
	}

	assert.Equal(t, uint64(5), m.Dropped())
	assert.Len(t, c, subscriberBuffer)
	assert.Equal(t, uint64(0), (<-c).Seq, "oldest buffered frame is delivered first")
}

func TestMux_Close(t *testing.T) {
	m := New()
	_, c := m.Subscribe()

	m.Close()
	m.Publish(testFrame(1)) // must not panic on closed channels

	_, ok := <-c
	assert.False(t, ok)

	_, late := m.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after Close returns a closed channel")
}

func TestEncodeCSV(t *testing.T) {
	f := Frame{
		Seq:       7,
		Timestamp: time.Unix(1, 500),
		Records: []pose.PoseRecord{
			{1, 2, 3, 0, 0, 0, 1},
			{0.5, -1.25, 0, pose.IdentityQuaternion.X, 0, 0, float32(math.NaN())},
		},
	}

	got := EncodeCSV(f)

	assert.Equal(t, "7,1000000500,2,1,2,3,0,0,0,1,0.5,-1.25,0,0,0,0,NaN", got)
}

func TestFrame_Flat(t *testing.T) {
	f := testFrame(1)
	assert.Equal(t, []float32{0, 0, 0, 0, 0, 0, 1}, f.Flat())
}

func TestAttachAdminRoutes_Tail(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/debug/poses-tail", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	ping, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", ping)

	// The handler subscribes before sending the ping, so this frame is seen.
	m.Publish(testFrame(3))

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			assert.True(t, strings.HasPrefix(line, "data: 3,"), "got %q", line)
			break
		}
	}
}
