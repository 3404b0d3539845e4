package simulator

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
)

const (
	frameWidth  = 64
	frameHeight = 36
)

// renderFrames produces count solid-colour PNG frames. Every flagEvery-th
// frame (1-based) is marked as flagged; flagEvery <= 0 flags nothing.
func renderFrames(count, flagEvery int) ([]Frame, error) {
	if count < 0 {
		return nil, fmt.Errorf("invalid frame count: %d", count)
	}
	frames := make([]Frame, 0, count)
	for i := 1; i <= count; i++ {
		img := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
		fill := color.RGBA{R: uint8(i * 37), G: uint8(i * 91), B: uint8(i * 53), A: 255}
		for y := 0; y < frameHeight; y++ {
			for x := 0; x < frameWidth; x++ {
				img.Set(x, y, fill)
			}
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("failed to encode frame %d: %w", i, err)
		}

		frames = append(frames, Frame{
			Filename: fmt.Sprintf("frame_%04d.png", i),
			Flagged:  flagEvery > 0 && i%flagEvery == 0,
			Data:     buf.Bytes(),
		})
	}
	return frames, nil
}

// writeArchive zips frames into w in the given order
func writeArchive(w io.Writer, frames []Frame) error {
	zw := zip.NewWriter(w)
	for _, f := range frames {
		fw, err := zw.Create(f.Filename)
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", f.Filename, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("failed to write %s to archive: %w", f.Filename, err)
		}
	}
	return zw.Close()
}
