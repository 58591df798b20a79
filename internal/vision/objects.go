package vision

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"

	"github.com/your-org/pictor/internal/annotate"
	"github.com/your-org/pictor/internal/geometry"
)

// VOCLabels are the MobileNet-SSD classes, indexed by class id.
var VOCLabels = [...]string{
	"background", "aeroplane", "bicycle", "bird", "boat",
	"bottle", "bus", "car", "cat", "chair", "cow", "diningtable",
	"dog", "horse", "motorbike", "person", "pottedplant", "sheep",
	"sofa", "train", "tvmonitor",
}

const (
	backgroundClass      = 0
	defaultObjectMinConf = 0.5
	objectBoxThickness   = 2
	objectLabelOffset    = 10
	objectLabelPad       = 5
)

// Detection is one detected object.
type Detection struct {
	Box        geometry.Box `json:"box"`
	Label      string       `json:"label"`
	ClassID    int          `json:"class_id"`
	Confidence float32      `json:"confidence"`
	Percent    float64      `json:"percent"`
}

// Text is the caption drawn next to the box.
func (d Detection) Text() string {
	return fmt.Sprintf("%s: %.2f", d.Label, d.Confidence)
}

// ObjectReport summarises a detection pass.
type ObjectReport struct {
	TotalObjects int            `json:"total_objects"`
	ObjectCounts map[string]int `json:"object_counts"`
	Detections   []Detection    `json:"detections"`
}

func NewObjectReport(dets []Detection) *ObjectReport {
	r := &ObjectReport{
		TotalObjects: len(dets),
		ObjectCounts: make(map[string]int),
		Detections:   dets,
	}
	if r.Detections == nil {
		r.Detections = []Detection{}
	}
	for _, d := range dets {
		r.ObjectCounts[d.Label]++
	}
	return r
}

// ObjectDetector runs a MobileNet-SSD network over whole images.
type ObjectDetector struct {
	net        Network
	confidence float32
	seed       uint64
}

// NewObjectDetector wires the network. confidence <= 0 selects 0.5; seed
// fixes the per-class colour palette.
func NewObjectDetector(net Network, confidence float32, seed uint64) *ObjectDetector {
	if confidence <= 0 {
		confidence = defaultObjectMinConf
	}
	return &ObjectDetector{net: net, confidence: confidence, seed: seed}
}

// Detect returns detections in network order. Background, unknown class ids
// and boxes that fall outside the image are dropped.
func (d *ObjectDetector) Detect(img *image.NRGBA) ([]Detection, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	out, err := d.net.Forward(blobFromImage(img, objectBlob))
	if err != nil {
		return nil, fmt.Errorf("object network: %w", err)
	}

	dets := []Detection{}
	for _, row := range parseSSD(out) {
		if !(row.confidence > d.confidence) {
			continue
		}
		if row.classID <= backgroundClass || row.classID >= len(VOCLabels) {
			continue
		}

		box := geometry.ClampBox(geometry.FromNormalized(row.x1, row.y1, row.x2, row.y2, w, h), w, h)
		if box.Empty() {
			continue
		}

		dets = append(dets, Detection{
			Box:        box,
			Label:      VOCLabels[row.classID],
			ClassID:    row.classID,
			Confidence: row.confidence,
			Percent:    percentAbove(row.confidence, d.confidence),
		})
	}
	return dets, nil
}

// percentAbove rounds c to a two-decimal percentage. Confidences just over
// threshold would round onto it, so the result never drops below the next
// step.
func percentAbove(c, threshold float32) float64 {
	p := math.Round(float64(c)*10000) / 100
	if floor := (math.Floor(float64(threshold)*10000) + 1) / 100; p < floor {
		return floor
	}
	return p
}

// ClassColor is stable for a given seed and class id.
func (d *ObjectDetector) ClassColor(classID int) color.NRGBA {
	rng := rand.New(rand.NewPCG(d.seed, uint64(classID)))
	return color.NRGBA{
		R: uint8(rng.IntN(256)),
		G: uint8(rng.IntN(256)),
		B: uint8(rng.IntN(256)),
		A: 255,
	}
}

// Annotate draws the box, a filled caption background in the class colour
// and the caption in white.
func (d *ObjectDetector) Annotate(img *image.NRGBA, dets []Detection) {
	for _, det := range dets {
		c := d.ClassColor(det.ClassID)
		annotate.Rectangle(img, det.Box.Rect(), c, objectBoxThickness)

		text := det.Text()
		tw, th := annotate.TextSize(text)

		y := det.Box.Y1 + objectLabelOffset
		if det.Box.Y1-objectLabelOffset > objectLabelOffset {
			y = det.Box.Y1 - objectLabelOffset
		}

		annotate.FillRectangle(img, image.Rect(det.Box.X1, y-th-objectLabelPad, det.Box.X1+tw, y), c)
		annotate.Label(img, text, det.Box.X1, y-objectLabelPad, annotate.White)
	}
}
