package dto

// Box is [x1, y1, x2, y2] in pixels.
type Box [4]int

type FaceDetectionResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Faces    int    `json:"faces"`
}

type PersonResponse struct {
	Age        string  `json:"age"`
	Gender     string  `json:"gender"`
	Box        Box     `json:"box"`
	Confidence float32 `json:"confidence"`
}

type FaceRecognitionResponse struct {
	Filename string           `json:"filename"`
	URL      string           `json:"url"`
	People   []PersonResponse `json:"people"`
}

type FilterResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Filter   string `json:"filter"`
}

type FilterListResponse struct {
	Filters []string `json:"filters"`
}

// DetectedObject carries the confidence as a percentage rounded to two
// decimals.
type DetectedObject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

type ObjectDetectionResponse struct {
	Filename     string           `json:"filename"`
	URL          string           `json:"url"`
	TotalObjects int              `json:"total_objects"`
	ObjectCounts map[string]int   `json:"object_counts"`
	Detections   []DetectedObject `json:"detections"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
