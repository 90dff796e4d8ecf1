package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"rps-forge/internal/compute"
)

// ErrNoDetector is returned when Detect is called without a detector.
var ErrNoDetector = errors.New("inference: no detector")

// Detector is a multi-box object detector. For a [1, h, w, 3] frame it
// returns scores shaped [1, boxes, classes] and boxes shaped
// [1, boxes, 1, 4] holding normalized (ymin, xmin, ymax, xmax).
type Detector interface {
	Detect(ctx context.Context, x *compute.Tensor) (scores, boxes *compute.Tensor, err error)
}

// DetectedObject is one surviving box in frame pixels.
type DetectedObject struct {
	// BBox is x, y, width, height.
	BBox  [4]float64
	Class int
	Score float64
}

// DetectOptions bounds non-max suppression.
type DetectOptions struct {
	MaxBoxes       int
	IoUThreshold   float64
	ScoreThreshold float64
}

// DefaultDetectOptions keeps at most 20 boxes with IoU and score thresholds of 0.5.
func DefaultDetectOptions() DetectOptions {
	return DetectOptions{MaxBoxes: 20, IoUThreshold: 0.5, ScoreThreshold: 0.5}
}

// Detect runs det over img and suppresses overlapping boxes. Suppression
// runs on the cpu backend; the previous backend is restored afterwards.
func Detect(ctx context.Context, rt *compute.Runtime, det Detector, img image.Image, opts DetectOptions) ([]DetectedObject, error) {
	if det == nil {
		return nil, ErrNoDetector
	}

	batched, err := rt.Tidy(func() (*compute.Tensor, error) {
		px, err := rt.FromImage(img)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
		}
		return rt.ExpandDims(px, 0)
	})
	if err != nil {
		return nil, err
	}
	shape := batched.Shape()
	height, width := shape[1], shape[2]

	scoresT, boxesT, err := det.Detect(ctx, batched)
	batched.Release()
	defer rt.Release(scoresT, boxesT)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	scores, err := copyFloat32s(scoresT)
	if err != nil {
		return nil, fmt.Errorf("detect scores: %w", err)
	}
	boxes, err := copyFloat32s(boxesT)
	if err != nil {
		return nil, fmt.Errorf("detect boxes: %w", err)
	}
	return suppress(rt, width, height, scores, scoresT.Shape(), boxes, boxesT.Shape(), opts)
}

func suppress(rt *compute.Runtime, width, height int, scores []float32, scoreShape []int, boxes []float32, boxShape []int, opts DetectOptions) ([]DetectedObject, error) {
	if len(scoreShape) != 3 || len(boxShape) != 4 || boxShape[3] != 4 || scoreShape[1] != boxShape[1] {
		return nil, fmt.Errorf("detect: unexpected output shapes %v and %v", scoreShape, boxShape)
	}
	numBoxes, numClasses := scoreShape[1], scoreShape[2]
	if len(scores) != numBoxes*numClasses || len(boxes) != numBoxes*4 {
		return nil, fmt.Errorf("detect: outputs must hold a single frame, got %v and %v", scoreShape, boxShape)
	}
	maxScores, classes := maxScoresPerBox(scores, numBoxes, numClasses)

	var keep []int
	err := rt.WithBackend(compute.BackendCPU, func() error {
		t, err := rt.NewFloat32(boxes, numBoxes, 4)
		if err != nil {
			return err
		}
		defer t.Release()
		keep, err = NonMaxSuppression(t, maxScores, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("suppress: %w", err)
	}
	return buildDetectedObjects(width, height, boxes, maxScores, keep, classes), nil
}

// maxScoresPerBox picks the best class of each box. A box whose scores are
// all at most the smallest positive float keeps class -1.
func maxScoresPerBox(scores []float32, numBoxes, numClasses int) ([]float64, []int) {
	maxes := make([]float64, numBoxes)
	classes := make([]int, numBoxes)
	row := make([]float64, numClasses)
	for i := 0; i < numBoxes; i++ {
		for j := range row {
			row[j] = float64(scores[i*numClasses+j])
		}
		maxes[i], classes[i] = math.SmallestNonzeroFloat64, -1
		if numClasses == 0 {
			continue
		}
		if idx := floats.MaxIdx(row); row[idx] > math.SmallestNonzeroFloat64 {
			maxes[i], classes[i] = row[idx], idx
		}
	}
	return maxes, classes
}

// NonMaxSuppression greedily selects boxes ([n, 4] as y1, x1, y2, x2) in
// descending score order, dropping any whose IoU with a selected box exceeds
// the threshold and any scoring at or below the score threshold.
func NonMaxSuppression(boxes *compute.Tensor, scores []float64, opts DetectOptions) ([]int, error) {
	shape := boxes.Shape()
	if len(shape) != 2 || shape[1] != 4 || shape[0] != len(scores) {
		return nil, fmt.Errorf("nms: boxes %v do not match %d scores", shape, len(scores))
	}
	if len(scores) == 0 || opts.MaxBoxes <= 0 {
		return []int{}, nil
	}
	b, err := boxes.Float32s()
	if err != nil {
		return nil, err
	}

	candidates := make([]int, 0, len(scores))
	for i, s := range scores {
		if s > opts.ScoreThreshold {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i]] > scores[candidates[j]]
	})

	selected := make([]int, 0, opts.MaxBoxes)
	for _, c := range candidates {
		if len(selected) == opts.MaxBoxes {
			break
		}
		suppressed := false
		for _, s := range selected {
			if iou(b[c*4:c*4+4], b[s*4:s*4+4]) > opts.IoUThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

func iou(a, b []float32) float64 {
	ay1, ay2 := minmax(a[0], a[2])
	ax1, ax2 := minmax(a[1], a[3])
	by1, by2 := minmax(b[0], b[2])
	bx1, bx2 := minmax(b[1], b[3])

	areaA := (ay2 - ay1) * (ax2 - ax1)
	areaB := (by2 - by1) * (bx2 - bx1)
	if areaA <= 0 || areaB <= 0 {
		return 0
	}
	ih := math.Max(0, math.Min(ay2, by2)-math.Max(ay1, by1))
	iw := math.Max(0, math.Min(ax2, bx2)-math.Max(ax1, bx1))
	inter := ih * iw
	return inter / (areaA + areaB - inter)
}

func minmax(a, b float32) (float64, float64) {
	return math.Min(float64(a), float64(b)), math.Max(float64(a), float64(b))
}

func buildDetectedObjects(width, height int, boxes []float32, scores []float64, indexes, classes []int) []DetectedObject {
	objects := make([]DetectedObject, 0, len(indexes))
	for _, idx := range indexes {
		box := boxes[idx*4 : idx*4+4]
		minY := float64(box[0]) * float64(height)
		minX := float64(box[1]) * float64(width)
		maxY := float64(box[2]) * float64(height)
		maxX := float64(box[3]) * float64(width)
		objects = append(objects, DetectedObject{
			BBox:  [4]float64{minX, minY, maxX - minX, maxY - minY},
			Class: classes[idx],
			Score: scores[idx],
		})
	}
	return objects
}

func copyFloat32s(t *compute.Tensor) ([]float32, error) {
	if t == nil {
		return nil, errors.New("missing output tensor")
	}
	v, err := t.Float32s()
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), v...), nil
}
