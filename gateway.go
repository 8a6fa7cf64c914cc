package reveal

import (
	"context"
	"fmt"
	"image"
)

// ContentMode selects how an image is fitted to the requested size.
type ContentMode uint8

const (
	// AspectFill scales to cover the target and crops the overflow.
	AspectFill ContentMode = iota
	// AspectFit scales to fit inside the target without cropping.
	AspectFit
)

// String returns a string representation of the content mode.
func (m ContentMode) String() string {
	switch m {
	case AspectFill:
		return "aspectFill"
	case AspectFit:
		return "aspectFit"
	default:
		return "unknown"
	}
}

// Delivery is one result of an image request. A request may deliver any
// number of degraded previews before its final image.
type Delivery struct {
	Image    image.Image
	Degraded bool
	Err      error
}

// ImageSource is the external decode/resize service.
//
// RequestImage starts an asynchronous request and returns a channel of
// deliveries that is closed when the request finishes. Implementations must
// stop sending and close the channel once ctx is done.
type ImageSource interface {
	RequestImage(ctx context.Context, asset Asset, target Size, mode ContentMode) <-chan Delivery
}

// FetchGateway turns the multi-delivery ImageSource protocol into a single
// final image per request.
type FetchGateway struct {
	source ImageSource
	target Size
	mode   ContentMode
}

// NewFetchGateway returns a gateway requesting images of the target size.
func NewFetchGateway(source ImageSource, target Size, mode ContentMode) *FetchGateway {
	return &FetchGateway{source: source, target: target, mode: mode}
}

// Target returns the requested image size.
func (g *FetchGateway) Target() Size {
	return g.target
}

// Fetch blocks until the first non-degraded delivery for asset and returns
// it. Degraded previews are skipped and anything delivered after the final
// image is ignored. It returns ErrNoImage if the request ends without a
// final image, or the context error if ctx is done first.
//
// Fetch performs I/O; call it from the background pool only.
func (g *FetchGateway) Fetch(ctx context.Context, asset Asset) (image.Image, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel() // tells the source to stop after the final delivery

	ch := g.source.RequestImage(reqCtx, asset, g.target, g.mode)
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-ch:
			if !ok {
				if lastErr != nil {
					return nil, fmt.Errorf("reveal: fetch %s: %w: %w", asset.ID, ErrNoImage, lastErr)
				}
				return nil, fmt.Errorf("reveal: fetch %s: %w", asset.ID, ErrNoImage)
			}
			if d.Err != nil {
				lastErr = d.Err
				continue
			}
			if d.Degraded || d.Image == nil {
				continue
			}
			return d.Image, nil
		}
	}
}
