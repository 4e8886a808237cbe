package automation

import (
	"context"
	"fmt"
	"math"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// defaultLossyQuality is used for jpeg and webp when the caller does
// not pick one.
const defaultLossyQuality = 80

// ScreenshotOptions controls a capture. The zero value is a png of the
// current viewport.
type ScreenshotOptions struct {
	Format    string // png, jpeg or webp; png when empty
	Quality   int    // lossy formats only
	FullPage  bool
	ElementID string // clip to one element; overrides FullPage
}

// CaptureScreenshot renders the bound view to an encoded image.
func (c *Context) CaptureScreenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	if _, err := c.boundTarget(); err != nil {
		return nil, err
	}

	req := &proto.PageCaptureScreenshot{FromSurface: true}
	switch opts.Format {
	case "", "png":
		req.Format = proto.PageCaptureScreenshotFormatPng
	case "jpeg":
		req.Format = proto.PageCaptureScreenshotFormatJpeg
	case "webp":
		req.Format = proto.PageCaptureScreenshotFormatWebp
	default:
		return nil, errCommandFailed(fmt.Errorf("unsupported screenshot format %q", opts.Format))
	}
	if req.Format != proto.PageCaptureScreenshotFormatPng {
		quality := opts.Quality
		if quality <= 0 {
			quality = defaultLossyQuality
		}
		req.Quality = gson.Int(quality)
	}

	switch {
	case opts.ElementID != "":
		clip, err := c.elementClip(ctx, opts.ElementID)
		if err != nil {
			return nil, err
		}
		req.Clip = clip
	case opts.FullPage:
		clip, err := c.fullPageClip(ctx)
		if err != nil {
			return nil, err
		}
		req.Clip = clip
		req.CaptureBeyondViewport = true
	}

	var res proto.PageCaptureScreenshotResult
	if err := c.call(ctx, req, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}

// elementClip scrolls the element into view and returns its content
// box as a capture clip.
func (c *Context) elementClip(ctx context.Context, id string) (*proto.PageViewport, error) {
	node, err := c.resolveElement(id)
	if err != nil {
		return nil, err
	}
	if err := c.scrollIntoView(ctx, node.Backend); err != nil {
		return nil, err
	}
	var res proto.DOMGetBoxModelResult
	if err := c.call(ctx, &proto.DOMGetBoxModel{BackendNodeID: node.Backend}, &res); err != nil {
		return nil, err
	}
	if res.Model == nil || len(res.Model.Content) < 8 {
		return nil, errCommandFailed(fmt.Errorf("element has no box model"))
	}
	q := res.Model.Content
	minX, maxX := q[0], q[0]
	minY, maxY := q[1], q[1]
	for i := 2; i < 8; i += 2 {
		minX = math.Min(minX, q[i])
		maxX = math.Max(maxX, q[i])
		minY = math.Min(minY, q[i+1])
		maxY = math.Max(maxY, q[i+1])
	}
	if maxX-minX < 1 || maxY-minY < 1 {
		return nil, errCommandFailed(fmt.Errorf("element has no visible area"))
	}
	return &proto.PageViewport{
		X:      minX,
		Y:      minY,
		Width:  maxX - minX,
		Height: maxY - minY,
		Scale:  1,
	}, nil
}

// fullPageClip measures the whole document so the capture extends past
// the viewport.
func (c *Context) fullPageClip(ctx context.Context) (*proto.PageViewport, error) {
	var res proto.PageGetLayoutMetricsResult
	if err := c.call(ctx, &proto.PageGetLayoutMetrics{}, &res); err != nil {
		return nil, err
	}
	size := res.CSSContentSize
	if size == nil {
		size = res.ContentSize
	}
	if size == nil {
		return nil, errCommandFailed(fmt.Errorf("layout metrics reported no content size"))
	}
	return &proto.PageViewport{
		X:      0,
		Y:      0,
		Width:  size.Width,
		Height: size.Height,
		Scale:  1,
	}, nil
}
