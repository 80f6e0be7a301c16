package surface_test

import (
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Broadcast/internal/adapters/surface"
	"github.com/dkeye/Broadcast/internal/app/apptest"
	"github.com/dkeye/Broadcast/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherSurface(t *testing.T) {
	p := surface.NewPublisher()
	p.ViewerCountChanged(3)
	assert.Equal(t, 3, p.ViewerCount())

	boom := errors.New("boom")
	p.Fatal(boom)
	p.Fatal(errors.New("second"))
	assert.Equal(t, boom, <-p.Errors())
}

func TestViewerSurfaceTracksAndStatus(t *testing.T) {
	v := surface.NewViewer()
	v.StatusChanged(domain.ViewerConnected)
	assert.Equal(t, domain.ViewerConnected, v.Status())
	v.SetMuted(true)
	assert.True(t, v.Muted())

	track := apptest.NewRemoteTrack("video", webrtc.RTPCodecTypeVideo)
	v.AttachTrack(track)
	assert.Equal(t, 1, v.Attached())

	v.DetachAll()
	assert.Zero(t, v.Attached())

	track.Stop()
	done := make(chan struct{})
	go func() {
		v.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "drain did not stop")
	}
}
