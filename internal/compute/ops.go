package compute

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"gorgonia.org/tensor"
)

// ErrEmptyImage is returned when an image has no pixels to read.
var ErrEmptyImage = errors.New("compute: image has no pixels")

// FromImage reads img into a [height, width, 3] tensor of RGB values in [0,1].
func (r *Runtime) FromImage(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyImage
	}

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	origin := rgba.Bounds().Min

	// Pix of a sub-image runs to the end of its parent, so read row by row.
	out := make([]float32, h*w*3)
	x := 0
	for y := 0; y < h; y++ {
		start := rgba.PixOffset(origin.X, origin.Y+y)
		row := rgba.Pix[start : start+4*w]
		for j := 0; j < len(row); j += 4 {
			out[x] = float32(row[j]) / 255
			out[x+1] = float32(row[j+1]) / 255
			out[x+2] = float32(row[j+2]) / 255
			x += 3
		}
	}
	return r.NewFloat32(out, h, w, 3)
}

// Mean averages a float32 tensor along axis, dropping that axis.
func (r *Runtime) Mean(t *Tensor, axis int) (*Tensor, error) {
	if _, err := t.Float32s(); err != nil {
		return nil, err
	}
	if axis < 0 || axis >= len(t.shape) {
		return nil, fmt.Errorf("compute: mean axis %d out of range for shape %v", axis, t.shape)
	}
	outShape := make([]int, 0, len(t.shape)-1)
	outShape = append(outShape, t.shape[:axis]...)
	outShape = append(outShape, t.shape[axis+1:]...)
	outSize, _ := shapeSize(outShape)

	if t.dense == nil {
		return r.NewFloat32(make([]float32, outSize), outShape...)
	}

	sum, err := t.dense.Sum(axis)
	if err != nil {
		return nil, fmt.Errorf("compute: sum along %d: %w", axis, err)
	}
	quot, err := tensor.Div(sum, float32(t.shape[axis]))
	if err != nil {
		return nil, fmt.Errorf("compute: divide: %w", err)
	}

	out := make([]float32, outSize)
	switch v := quot.Data().(type) {
	case []float32:
		copy(out, v)
	case float32:
		out[0] = v
	default:
		return nil, fmt.Errorf("compute: mean produced %T", v)
	}
	return r.NewFloat32(out, outShape...)
}

// ExpandDims inserts a size-1 axis at position axis. The result shares t's data.
func (r *Runtime) ExpandDims(t *Tensor, axis int) (*Tensor, error) {
	if axis < 0 || axis > len(t.shape) {
		return nil, fmt.Errorf("compute: expand axis %d out of range for shape %v", axis, t.shape)
	}
	shape := make([]int, 0, len(t.shape)+1)
	shape = append(shape, t.shape[:axis]...)
	shape = append(shape, 1)
	shape = append(shape, t.shape[axis:]...)
	return r.Reshape(t, shape...)
}

// Reshape returns a tensor over t's data with a new shape of equal size.
func (r *Runtime) Reshape(t *Tensor, shape ...int) (*Tensor, error) {
	if t.released {
		return nil, fmt.Errorf("compute: reshape of released tensor %d", t.id)
	}
	switch v := t.data.(type) {
	case []float32:
		return r.NewFloat32(v, shape...)
	case []uint8:
		return r.NewUint8(v, shape...)
	default:
		return nil, fmt.Errorf("compute: reshape of unsupported %T", v)
	}
}

// ResizeBilinear resamples a [height, width, channels] tensor to
// [outH, outW, channels]. With alignCorners the corner pixels of input and
// output coincide; otherwise source coordinates are dst * in/out.
func (r *Runtime) ResizeBilinear(t *Tensor, outH, outW int, alignCorners bool) (*Tensor, error) {
	src, err := t.Float32s()
	if err != nil {
		return nil, err
	}
	if len(t.shape) != 3 {
		return nil, fmt.Errorf("compute: resize wants [h, w, c], got %v", t.shape)
	}
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("compute: invalid resize target %dx%d", outW, outH)
	}
	inH, inW, c := t.shape[0], t.shape[1], t.shape[2]
	if inH == 0 || inW == 0 {
		return nil, ErrEmptyImage
	}

	scaleY := resizeScale(inH, outH, alignCorners)
	scaleX := resizeScale(inW, outW, alignCorners)

	out := make([]float32, outH*outW*c)
	for y := 0; y < outH; y++ {
		inY := float64(y) * scaleY
		y0 := int(math.Floor(inY))
		y1 := min(y0+1, inH-1)
		dy := float32(inY - float64(y0))
		for x := 0; x < outW; x++ {
			inX := float64(x) * scaleX
			x0 := int(math.Floor(inX))
			x1 := min(x0+1, inW-1)
			dx := float32(inX - float64(x0))

			tl := (y0*inW + x0) * c
			tr := (y0*inW + x1) * c
			bl := (y1*inW + x0) * c
			br := (y1*inW + x1) * c
			dst := (y*outW + x) * c
			for ch := 0; ch < c; ch++ {
				top := src[tl+ch] + (src[tr+ch]-src[tl+ch])*dx
				bottom := src[bl+ch] + (src[br+ch]-src[bl+ch])*dx
				out[dst+ch] = top + (bottom-top)*dy
			}
		}
	}
	return r.NewFloat32(out, outH, outW, c)
}

func resizeScale(in, out int, alignCorners bool) float64 {
	if alignCorners {
		if out > 1 {
			return float64(in-1) / float64(out-1)
		}
		return 0
	}
	return float64(in) / float64(out)
}

// ToImage renders a [height, width, channels] float32 tensor, multiplying
// each value by scale. One channel renders as gray.
func ToImage(t *Tensor, scale float32) (*image.RGBA, error) {
	src, err := t.Float32s()
	if err != nil {
		return nil, err
	}
	if len(t.shape) != 3 {
		return nil, fmt.Errorf("compute: render wants [h, w, c], got %v", t.shape)
	}
	h, w, c := t.shape[0], t.shape[1], t.shape[2]
	if c != 1 && c != 3 && c != 4 {
		return nil, fmt.Errorf("compute: cannot render %d channels", c)
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * c
			px := color.RGBA{A: 255}
			if c == 1 {
				v := toByte(src[i] * scale)
				px.R, px.G, px.B = v, v, v
			} else {
				px.R = toByte(src[i] * scale)
				px.G = toByte(src[i+1] * scale)
				px.B = toByte(src[i+2] * scale)
				if c == 4 {
					px.A = toByte(src[i+3] * scale)
				}
			}
			img.SetRGBA(x, y, px)
		}
	}
	return img, nil
}

// DrawTo renders t onto dst, stretching with nearest-neighbour sampling when
// the sizes differ.
func DrawTo(dst draw.Image, t *Tensor, scale float32) error {
	img, err := ToImage(t, scale)
	if err != nil {
		return err
	}
	db := dst.Bounds()
	if db.Size() == img.Bounds().Size() {
		draw.Draw(dst, db, img, image.Point{}, draw.Src)
		return nil
	}
	draw.NearestNeighbor.Scale(dst, db, img, img.Bounds(), draw.Src, nil)
	return nil
}

func toByte(v float32) uint8 {
	if v <= 0 || v != v {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
