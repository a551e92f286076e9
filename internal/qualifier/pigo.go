package qualifier

import (
	"fmt"

	pigo "github.com/esimov/pigo/core"
)

const (
	// clusterIoU is the intersection-over-union threshold used to merge
	// overlapping raw detections into one face.
	clusterIoU = 0.2

	// DefaultMinFaceSize and DefaultMaxFaceSize bound the detector's
	// scan window in pixels.
	DefaultMinFaceSize = 20
	DefaultMaxFaceSize = 1000
)

// PigoDetector wraps the pigo cascade classifier behind the Detector
// interface. The classifier is stateless after Unpack and safe for
// concurrent RunCascade calls.
type PigoDetector struct {
	classifier *pigo.Pigo
	minSize    int
	maxSize    int
}

// NewPigoDetector unpacks a binary cascade (the stock pigo facefinder)
// into a ready detector.
func NewPigoDetector(cascade []byte, minSize, maxSize int) (*PigoDetector, error) {
	if minSize <= 0 {
		minSize = DefaultMinFaceSize
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFaceSize
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	return &PigoDetector{
		classifier: classifier,
		minSize:    minSize,
		maxSize:    maxSize,
	}, nil
}

// Detect runs the cascade over a grayscale image and returns clustered
// face regions.
func (d *PigoDetector) Detect(pixels []uint8, rows, cols int) []Face {
	params := pigo.CascadeParams{
		MinSize:     d.minSize,
		MaxSize:     d.maxSize,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, clusterIoU)

	faces := make([]Face, 0, len(dets))
	for _, det := range dets {
		if det.Q <= 0 {
			continue
		}
		faces = append(faces, Face{
			Row:     det.Row,
			Col:     det.Col,
			Size:    det.Scale,
			Quality: float64(det.Q),
		})
	}
	return faces
}
