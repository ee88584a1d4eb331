// Package imageproc turns image files into the fixed-size pixel tensors the
// feature network expects.
package imageproc

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/imgclassify/internal/config"
)

const channels = 3

var interpolations = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// Preprocessor resizes images and extracts their pixels with one fixed
// configuration.
type Preprocessor struct {
	cfg    config.PreprocessConfig
	interp resize.InterpolationFunction
}

// New validates cfg and returns a Preprocessor for it.
func New(cfg config.PreprocessConfig) (*Preprocessor, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: size %dx%d", ErrOptions, cfg.Width, cfg.Height)
	}
	interp, ok := interpolations[cfg.Interpolation]
	if !ok {
		return nil, fmt.Errorf("%w: interpolation %q", ErrOptions, cfg.Interpolation)
	}
	switch cfg.Resizing {
	case config.ResizeIsoCrop, config.ResizeFill, config.ResizeIsoPad:
	default:
		return nil, fmt.Errorf("%w: resizing %q", ErrOptions, cfg.Resizing)
	}
	switch cfg.Order {
	case "rgb", "bgr":
	default:
		return nil, fmt.Errorf("%w: channel order %q", ErrOptions, cfg.Order)
	}

	return &Preprocessor{cfg: cfg, interp: interp}, nil
}

// Config returns the configuration the Preprocessor was built with.
func (p *Preprocessor) Config() config.PreprocessConfig {
	return p.cfg
}

// Shape returns the tensor shape produced by Pixels, with a leading batch
// dimension of 1 when batch is set.
func (p *Preprocessor) Shape(batch bool) []int64 {
	h, w := int64(p.cfg.Height), int64(p.cfg.Width)
	shape := []int64{channels, h, w}
	if p.cfg.ChannelsLast {
		shape = []int64{h, w, channels}
	}
	if batch {
		shape = append([]int64{1}, shape...)
	}
	return shape
}

// Load decodes the image file at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, path, err)
	}
	return img, nil
}

// Resize scales img to exactly Width x Height according to the resizing kind.
func (p *Preprocessor) Resize(img image.Image) image.Image {
	w, h := p.cfg.Width, p.cfg.Height
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return image.NewRGBA(image.Rect(0, 0, w, h))
	}

	switch p.cfg.Resizing {
	case config.ResizeFill:
		return resize.Resize(uint(w), uint(h), img, p.interp)
	case config.ResizeIsoPad:
		scale := math.Min(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
		sw := clamp(int(math.Round(float64(b.Dx())*scale)), 1, w)
		sh := clamp(int(math.Round(float64(b.Dy())*scale)), 1, h)
		scaled := resize.Resize(uint(sw), uint(sh), img, p.interp)

		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		offset := image.Pt((w-sw)/2, (h-sh)/2)
		draw.Draw(dst, image.Rectangle{Min: offset, Max: offset.Add(image.Pt(sw, sh))}, scaled, scaled.Bounds().Min, draw.Src)
		return dst
	default:
		scale := math.Max(float64(w)/float64(b.Dx()), float64(h)/float64(b.Dy()))
		sw := max(int(math.Round(float64(b.Dx())*scale)), w)
		sh := max(int(math.Round(float64(b.Dy())*scale)), h)
		scaled := resize.Resize(uint(sw), uint(sh), img, p.interp)

		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		crop := scaled.Bounds().Min.Add(image.Pt((sw-w)/2, (sh-h)/2))
		draw.Draw(dst, dst.Bounds(), scaled, crop, draw.Src)
		return dst
	}
}

// Pixels extracts the 8-bit color channels of img as (value - Offset) * Scale.
// img is expected to already be Width x Height.
func (p *Preprocessor) Pixels(img image.Image) []float32 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			values := [channels]uint8{c.R, c.G, c.B}
			if p.cfg.Order == "bgr" {
				values = [channels]uint8{c.B, c.G, c.R}
			}

			pixelIndex := y*width + x
			for ch, v := range values {
				f := (float32(v) - p.cfg.Offset) * p.cfg.Scale
				if p.cfg.ChannelsLast {
					data[pixelIndex*channels+ch] = f
				} else {
					data[ch*plane+pixelIndex] = f
				}
			}
		}
	}

	return data
}

// Tensor runs Load, Resize and Pixels on the image at path.
func (p *Preprocessor) Tensor(path string) ([]float32, error) {
	img, err := Load(path)
	if err != nil {
		return nil, err
	}
	return p.Pixels(p.Resize(img)), nil
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
