package vision

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/your-org/pictor/internal/annotate"
	"github.com/your-org/pictor/internal/geometry"
)

// AgeBucket is one of the coarse age ranges the age network predicts.
type AgeBucket int

const (
	Age0to2 AgeBucket = iota
	Age4to6
	Age8to12
	Age15to20
	Age25to32
	Age38to43
	Age48to53
	Age60to100
)

var ageBucketLabels = [...]string{"(0-2)", "(4-6)", "(8-12)", "(15-20)", "(25-32)", "(38-43)", "(48-53)", "(60-100)"}

func (a AgeBucket) String() string {
	if a < 0 || int(a) >= len(ageBucketLabels) {
		return fmt.Sprintf("AgeBucket(%d)", int(a))
	}
	return ageBucketLabels[a]
}

func (a AgeBucket) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

type Gender int

const (
	Male Gender = iota
	Female
)

var genderLabels = [...]string{"Male", "Female"}

func (g Gender) String() string {
	if g < 0 || int(g) >= len(genderLabels) {
		return fmt.Sprintf("Gender(%d)", int(g))
	}
	return genderLabels[g]
}

func (g Gender) MarshalText() ([]byte, error) { return []byte(g.String()), nil }

// FaceAttribute is one recognised face.
type FaceAttribute struct {
	Box        geometry.Box `json:"box"`
	Confidence float32      `json:"confidence"`
	Age        AgeBucket    `json:"age"`
	Gender     Gender       `json:"gender"`
}

func (f FaceAttribute) Label() string {
	return fmt.Sprintf("%s, %s", f.Gender, f.Age)
}

const (
	faceCropMargin     = 15
	faceLabelOffset    = 10
	defaultFaceMinConf = 0.7
)

// FaceAttributeRecognizer locates faces with an SSD network and classifies
// each crop by age bucket and gender.
type FaceAttributeRecognizer struct {
	face       Network
	age        Network
	gender     Network
	confidence float32
}

// NewFaceAttributeRecognizer wires the three networks. Detections at or
// below confidence are discarded; zero selects 0.7.
func NewFaceAttributeRecognizer(face, age, gender Network, confidence float32) *FaceAttributeRecognizer {
	if confidence <= 0 {
		confidence = defaultFaceMinConf
	}
	return &FaceAttributeRecognizer{face: face, age: age, gender: gender, confidence: confidence}
}

// Recognize returns attributes in network order.
func (r *FaceAttributeRecognizer) Recognize(img *image.NRGBA) ([]FaceAttribute, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	out, err := r.face.Forward(blobFromImage(img, faceBlob))
	if err != nil {
		return nil, fmt.Errorf("face network: %w", err)
	}

	people := []FaceAttribute{}
	for _, row := range parseSSD(out) {
		if !(row.confidence > r.confidence) {
			continue
		}

		raw := geometry.FromNormalized(row.x1, row.y1, row.x2, row.y2, w, h)
		box := geometry.ClampBox(raw, w, h)
		crop := faceCrop(raw, w, h)
		if box.Empty() || crop.Empty() {
			continue
		}

		blob := blobFromImage(imaging.Crop(img, crop.Rect()), attributeBlob)

		genderOut, err := r.gender.Forward(blob)
		if err != nil {
			return nil, fmt.Errorf("gender network: %w", err)
		}
		ageOut, err := r.age.Forward(blob)
		if err != nil {
			return nil, fmt.Errorf("age network: %w", err)
		}
		if len(genderOut) < len(genderLabels) || len(ageOut) < len(ageBucketLabels) {
			return nil, fmt.Errorf("unexpected classifier output sizes: gender %d, age %d", len(genderOut), len(ageOut))
		}

		people = append(people, FaceAttribute{
			Box:        box,
			Confidence: row.confidence,
			Age:        AgeBucket(argmax(ageOut[:len(ageBucketLabels)])),
			Gender:     Gender(argmax(genderOut[:len(genderLabels)])),
		})
	}
	return people, nil
}

// faceCrop pads raw by faceCropMargin for the classifiers. The far edges
// stop one pixel short of the image border.
func faceCrop(raw geometry.Box, w, h int) geometry.Box {
	crop := geometry.ExpandBox(raw, faceCropMargin, w, h)
	crop.X2 = min(crop.X2, w-1)
	crop.Y2 = min(crop.Y2, h-1)
	return crop
}

// Annotate draws each face box in green with its label in blue above it.
func (r *FaceAttributeRecognizer) Annotate(img *image.NRGBA, people []FaceAttribute) {
	for _, p := range people {
		annotate.Rectangle(img, p.Box.Rect(), annotate.Green, faceBoxThickness)
		annotate.Label(img, p.Label(), p.Box.X1, p.Box.Y1-faceLabelOffset, annotate.Blue)
	}
}
