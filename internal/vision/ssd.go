package vision

// ssdRowLen is the width of one detection_out row:
// [image_id, class_id, confidence, x1, y1, x2, y2] with normalised corners.
const ssdRowLen = 7

type ssdRow struct {
	classID    int
	confidence float32
	x1, y1     float32
	x2, y2     float32
}

// parseSSD reads detection rows in network order. A negative image id marks
// the end of the valid rows.
func parseSSD(out []float32) []ssdRow {
	rows := make([]ssdRow, 0, len(out)/ssdRowLen)
	for i := 0; i+ssdRowLen <= len(out); i += ssdRowLen {
		r := out[i : i+ssdRowLen]
		if r[0] < 0 {
			break
		}
		rows = append(rows, ssdRow{
			classID:    int(r[1]),
			confidence: r[2],
			x1:         r[3],
			y1:         r[4],
			x2:         r[5],
			y2:         r[6],
		})
	}
	return rows
}

func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
