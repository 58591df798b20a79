// Package filters implements the named pixel transforms offered by the
// filter endpoint.
//
// Every transform is a pure function of its input: Apply clones the source
// buffer before dispatching, so callers may keep using the image they passed
// in. Transforms are selected through a fixed table keyed by Kind; kinds that
// are not in the table (including "none") pass the image through unchanged.
package filters

import (
	"fmt"
	"image"
	"math/rand/v2"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/your-org/pictor/internal/codec"
)

// Kind names a transform.
type Kind string

const (
	KindNone          Kind = "none"
	KindAdjustable    Kind = "adjustable"
	KindGrayscale     Kind = "grayscale"
	KindSepia         Kind = "sepia"
	KindInvert        Kind = "invert"
	KindCool          Kind = "cool"
	KindWarm          Kind = "warm"
	KindVibrant       Kind = "vibrant"
	KindEdgeDetection Kind = "edge_detection"
	KindCartoon       Kind = "cartoon"
	KindSketch        Kind = "sketch"
	KindOilPainting   Kind = "oil_painting"
	KindSharpen       Kind = "sharpen"
	KindEmboss        Kind = "emboss"
	KindVintage       Kind = "vintage"
)

// ParseKind normalises user input. It does not reject unknown names;
// Apply treats those as passthrough.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return KindNone
	}
	return Kind(s)
}

// Known reports whether k has a dedicated handler.
func (k Kind) Known() bool {
	if k == KindNone || k == KindAdjustable {
		return true
	}
	_, ok := presets[k]
	return ok
}

// Kinds lists every supported kind in lexical order.
func Kinds() []Kind {
	kinds := []Kind{KindNone, KindAdjustable}
	for k := range presets {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Params configures the adjustable transform. Other kinds ignore it.
type Params struct {
	Brightness int `json:"brightness"` // 0-200, 100 is neutral
	Contrast   int `json:"contrast"`   // 0-200, 100 is neutral
	Sepia      int `json:"sepia"`      // 0-100 percent
	Blur       int `json:"blur"`       // kernel radius, 0 disables
}

const maxBlur = 100

func DefaultParams() Params {
	return Params{Brightness: 100, Contrast: 100}
}

func (p Params) Validate() error {
	switch {
	case p.Brightness < 0 || p.Brightness > 200:
		return fmt.Errorf("brightness %d out of range [0,200]", p.Brightness)
	case p.Contrast < 0 || p.Contrast > 200:
		return fmt.Errorf("contrast %d out of range [0,200]", p.Contrast)
	case p.Sepia < 0 || p.Sepia > 100:
		return fmt.Errorf("sepia %d out of range [0,100]", p.Sepia)
	case p.Blur < 0 || p.Blur > maxBlur:
		return fmt.Errorf("blur %d out of range [0,%d]", p.Blur, maxBlur)
	}
	return nil
}

// TransformError reports invalid parameters or an input that could not be
// decoded for a transform.
type TransformError struct {
	Kind Kind
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Kind, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

type transform func(e *Engine, img *image.NRGBA) *image.NRGBA

var presets = map[Kind]transform{
	KindGrayscale:     func(_ *Engine, img *image.NRGBA) *image.NRGBA { return imaging.Grayscale(img) },
	KindSepia:         func(_ *Engine, img *image.NRGBA) *image.NRGBA { return sepia(img, 1.0) },
	KindInvert:        func(_ *Engine, img *image.NRGBA) *image.NRGBA { return imaging.Invert(img) },
	KindCool:          func(_ *Engine, img *image.NRGBA) *image.NRGBA { return scaleChannels(img, 0.8, 1.0, 1.2) },
	KindWarm:          func(_ *Engine, img *image.NRGBA) *image.NRGBA { return scaleChannels(img, 1.2, 1.1, 0.8) },
	KindVibrant:       func(_ *Engine, img *image.NRGBA) *image.NRGBA { return saturate(img, 1.5) },
	KindEdgeDetection: func(_ *Engine, img *image.NRGBA) *image.NRGBA { return edges(img) },
	KindCartoon:       cartoon,
	KindSketch:        func(_ *Engine, img *image.NRGBA) *image.NRGBA { return sketch(img) },
	KindOilPainting:   func(_ *Engine, img *image.NRGBA) *image.NRGBA { return oilPainting(img) },
	KindSharpen:       func(_ *Engine, img *image.NRGBA) *image.NRGBA { return convolve3(img, sharpenKernel) },
	KindEmboss:        func(_ *Engine, img *image.NRGBA) *image.NRGBA { return imaging.Grayscale(convolve3(img, embossKernel)) },
	KindVintage:       vintage,
}

// Engine applies transforms. It is safe for concurrent use; the only state
// is the seed source for stochastic transforms (vintage grain, cartoon
// cluster initialisation).
type Engine struct {
	seed    uint64
	counter atomic.Uint64
}

type Option func(*Engine)

// WithSeed makes stochastic transforms reproducible.
func WithSeed(seed uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{seed: uint64(time.Now().UnixNano())}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// rng returns a fresh generator per call so concurrent transforms never
// share one.
func (e *Engine) rng() *rand.Rand {
	return rand.New(rand.NewPCG(e.seed, e.counter.Add(1)))
}

// Apply runs kind over img and returns a new buffer.
func (e *Engine) Apply(img image.Image, kind Kind, p Params) (*image.NRGBA, error) {
	src := imaging.Clone(img)

	if kind == KindAdjustable {
		if err := p.Validate(); err != nil {
			return nil, &TransformError{Kind: kind, Err: err}
		}
		return adjust(src, p), nil
	}

	fn, ok := presets[kind]
	if !ok {
		return src, nil
	}
	return fn(e, src), nil
}

// ApplyFile decodes in, applies kind and writes the result to out.
// A decode failure is reported as *TransformError wrapping *codec.DecodeError;
// write failures surface as *codec.EncodeError.
func (e *Engine) ApplyFile(in, out string, kind Kind, p Params) (string, error) {
	img, err := codec.Decode(in)
	if err != nil {
		return "", &TransformError{Kind: kind, Err: err}
	}

	result, err := e.Apply(img, kind, p)
	if err != nil {
		return "", err
	}

	if err := codec.Encode(result, out); err != nil {
		return "", err
	}
	return out, nil
}

// adjust composes brightness/contrast, blur and sepia in that order.
func adjust(img *image.NRGBA, p Params) *image.NRGBA {
	img = brightnessContrast(img, p.Brightness, p.Contrast)
	if p.Blur > 0 {
		img = gaussianBlur(img, p.Blur)
	}
	if p.Sepia > 0 {
		img = sepia(img, float64(p.Sepia)/100)
	}
	return img
}
