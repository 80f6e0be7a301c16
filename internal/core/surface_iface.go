package core

import "github.com/dkeye/Broadcast/internal/domain"

// PublisherSurface is whatever shows the broadcast state to the publisher.
type PublisherSurface interface {
	ViewerCountChanged(n int)
	// Fatal reports an error that ends the broadcast.
	Fatal(err error)
}

// ViewerSurface renders the inbound stream.
type ViewerSurface interface {
	StatusChanged(domain.ViewerStatus)
	AttachTrack(RemoteTrack)
	// DetachAll releases every attached inbound track.
	DetachAll()
	SetMuted(bool)
	Fatal(err error)
}
