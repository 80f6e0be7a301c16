//go:build !cgo

package media

import (
	"context"
	"errors"

	"github.com/dkeye/Broadcast/internal/core"
	"github.com/dkeye/Broadcast/internal/domain"
)

var ErrNoCapture = errors.New("device capture requires a cgo build")

type DeviceAcquirer struct {
	MTU          int
	VideoBitRate int
}

func (DeviceAcquirer) Acquire(context.Context, domain.Constraints) (core.MediaSource, error) {
	return nil, ErrNoCapture
}
