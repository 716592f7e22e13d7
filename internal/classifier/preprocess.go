package classifier

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/i474232898/agri-assist/internal/apperr"
)

// InputSize is the square edge the network expects.
const InputSize = 224

// MaxImageBytes bounds how much of an upload is read.
const MaxImageBytes = 10 << 20

// ImageNet channel statistics.
var (
	channelMean = [3]float32{0.485, 0.456, 0.406}
	channelStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess decodes r, resizes it to InputSize x InputSize and returns a
// normalized CHW tensor (R plane, then G, then B).
func Preprocess(r io.Reader) ([]float32, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, apperr.WrapInput("failed to read image", err)
	}
	if len(data) == 0 {
		return nil, apperr.Input("image is empty")
	}
	if len(data) > MaxImageBytes {
		return nil, apperr.Inputf("image too large (max %d MB)", MaxImageBytes>>20)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.WrapInput("unreadable image", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, apperr.Input("image has no pixels")
	}

	dst := image.NewRGBA(image.Rect(0, 0, InputSize, InputSize))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	return toTensor(dst), nil
}

func toTensor(img *image.RGBA) []float32 {
	const plane = InputSize * InputSize
	out := make([]float32, 3*plane)
	for y := 0; y < InputSize; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < InputSize; x++ {
			px := row[x*4 : x*4+3]
			i := y*InputSize + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				out[c*plane+i] = (v - channelMean[c]) / channelStd[c]
			}
		}
	}
	return out
}
