// Package qualifier decides whether an avatar image is usable for the
// guess-who game: exactly one face, confident enough, large enough.
// Verdicts are pure functions of the image bytes and the configured
// thresholds; repeated calls on identical input return identical verdicts.
package qualifier

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	pigo "github.com/esimov/pigo/core"

	"github.com/ebdekock/StaffSlackBot/internal/model"
)

const (
	// DefaultConfidenceThreshold is the minimum normalized detection
	// confidence for a face to qualify.
	DefaultConfidenceThreshold = 0.5
	// DefaultMinFaceArea is the minimum fraction of the image area the
	// face bounding box must cover.
	DefaultMinFaceArea = 0.05
	// DefaultQualityScale maps raw detector quality q into [0,1) as
	// q/(q+scale), so q == scale lands exactly on 0.5.
	DefaultQualityScale = 5.0
)

// Face is one detected face region. Size is the side of the square
// bounding box centered at (Row, Col); Quality is the raw detector score.
type Face struct {
	Row     int
	Col     int
	Size    int
	Quality float64
}

// Detector locates faces in a grayscale image. Implementations must be
// deterministic and safe for concurrent use.
type Detector interface {
	Detect(pixels []uint8, rows, cols int) []Face
}

// Config holds qualification thresholds.
type Config struct {
	ConfidenceThreshold float64
	MinFaceArea         float64
	QualityScale        float64
}

// Qualifier applies the single-face admission policy on top of a Detector.
type Qualifier struct {
	detector  Detector
	threshold float64
	minArea   float64
	scale     float64
}

// New creates a Qualifier. Nil or zero config fields fall back to defaults.
func New(detector Detector, cfg *Config) *Qualifier {
	q := &Qualifier{
		detector:  detector,
		threshold: DefaultConfidenceThreshold,
		minArea:   DefaultMinFaceArea,
		scale:     DefaultQualityScale,
	}
	if cfg != nil {
		if cfg.ConfidenceThreshold > 0 {
			q.threshold = cfg.ConfidenceThreshold
		}
		if cfg.MinFaceArea > 0 {
			q.minArea = cfg.MinFaceArea
		}
		if cfg.QualityScale > 0 {
			q.scale = cfg.QualityScale
		}
	}
	return q
}

// Qualify runs face detection over the image bytes and returns a verdict.
// Undecodable bytes are treated as having no detectable face rather than
// as an error; qualification failures never propagate to the caller.
func (q *Qualifier) Qualify(imageBytes []byte) model.Verdict {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return model.Verdict{Usable: false, Reason: model.ReasonNoFaceDetected}
	}

	bounds := img.Bounds()
	rows, cols := bounds.Dy(), bounds.Dx()
	if rows == 0 || cols == 0 {
		return model.Verdict{Usable: false, Reason: model.ReasonNoFaceDetected}
	}

	gray := pigo.RgbToGrayscale(img)
	faces := q.detector.Detect(gray, rows, cols)
	if len(faces) == 0 {
		return model.Verdict{Usable: false, Reason: model.ReasonNoFaceDetected}
	}

	// Best face and the count of faces clearing the confidence bar.
	var best Face
	bestConf := -1.0
	confident := 0
	for _, f := range faces {
		conf := q.normalize(f.Quality)
		if conf >= q.threshold {
			confident++
		}
		if conf > bestConf {
			best = f
			bestConf = conf
		}
	}

	switch {
	case confident > 1:
		return model.Verdict{Usable: false, Reason: model.ReasonMultipleFaces, Confidence: bestConf}
	case confident == 0:
		return model.Verdict{Usable: false, Reason: model.ReasonLowConfidence, Confidence: bestConf}
	}

	areaFraction := float64(best.Size*best.Size) / float64(rows*cols)
	if areaFraction < q.minArea {
		return model.Verdict{Usable: false, Reason: model.ReasonTooSmall, Confidence: bestConf}
	}

	return model.Verdict{Usable: true, Confidence: bestConf}
}

// normalize maps a raw detector quality score into [0,1).
func (q *Qualifier) normalize(quality float64) float64 {
	if quality <= 0 {
		return 0
	}
	return quality / (quality + q.scale)
}
