package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/gabrielmaialva33/vivino/internal/types"
)

const (
	// YOLO-family ONNX exports use these tensor names
	inputName  = "images"
	outputName = "output0"
	// 4 bbox values + one score per COCO class
	valuesPerBox = 4 + 80
	nmsThreshold = 0.5
)

// ONNXDetector runs a YOLO-family object detection model through ONNX
// Runtime. Output layout is [1, numBoxes, 84]: center-x, center-y, width,
// height in model pixels followed by 80 class scores.
type ONNXDetector struct {
	modelPath string
	session   *ort.DynamicAdvancedSession
}

// NewONNXDetector loads the model at modelPath. Failure here is a startup
// failure: the caller reports it and exits.
func NewONNXDetector(modelPath string) (*ONNXDetector, error) {
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", modelPath, err)
	}

	slog.Info("onnx model loaded", "model", modelPath)
	return &ONNXDetector{modelPath: modelPath, session: session}, nil
}

// Detect implements Detector.
func (d *ONNXDetector) Detect(ctx context.Context, frame types.Frame, p Params) ([]RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	imgsz := p.ImageSize
	if imgsz <= 0 {
		imgsz = 640
	}

	inputTensor, err := preprocess(frame, imgsz)
	if err != nil {
		return nil, err
	}
	defer inputTensor.Destroy()

	boxes := gridBoxes(imgsz)
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(boxes), valuesPerBox))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := d.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return postprocess(outputTensor.GetData(), frame, imgsz, p), nil
}

// Warmup implements Detector: one inference on a synthetic black frame so
// session initialization cost is paid before the ready event.
func (d *ONNXDetector) Warmup(ctx context.Context) error {
	dummy := types.Frame{
		Width:  640,
		Height: 360,
		Data:   make([]byte, 640*360*types.Channels),
	}
	_, err := d.Detect(ctx, dummy, Params{ConfThreshold: 0.5, ImageSize: 640})
	if err != nil {
		return fmt.Errorf("model warmup failed: %w", err)
	}
	return nil
}

// Model implements Detector.
func (d *ONNXDetector) Model() string {
	return d.modelPath
}

// Close implements Detector.
func (d *ONNXDetector) Close() error {
	if d.session != nil {
		return d.session.Destroy()
	}
	return nil
}

// gridBoxes returns the number of anchor-free prediction boxes for a given
// square input size: one per cell at strides 8, 16 and 32 (8400 at 640).
func gridBoxes(imgsz int) int {
	s8 := imgsz / 8
	s16 := imgsz / 16
	s32 := imgsz / 32
	return s8*s8 + s16*s16 + s32*s32
}

// preprocess resizes the RGB frame to imgsz x imgsz and packs it as a
// normalized CHW float32 tensor.
func preprocess(frame types.Frame, imgsz int) (*ort.Tensor[float32], error) {
	data := make([]float32, types.Channels*imgsz*imgsz)
	plane := imgsz * imgsz

	for y := 0; y < imgsz; y++ {
		srcY := y * frame.Height / imgsz
		for x := 0; x < imgsz; x++ {
			srcX := x * frame.Width / imgsz
			src := (srcY*frame.Width + srcX) * types.Channels
			dst := y*imgsz + x
			for c := 0; c < types.Channels; c++ {
				data[c*plane+dst] = float32(frame.Data[src+c]) / 255.0
			}
		}
	}

	tensor, err := ort.NewTensor(ort.NewShape(1, types.Channels, int64(imgsz), int64(imgsz)), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	return tensor, nil
}

// postprocess filters boxes by confidence and class, maps model coordinates
// back to frame pixels and suppresses overlapping boxes.
func postprocess(output []float32, frame types.Frame, imgsz int, p Params) []RawDetection {
	allowed := map[int]bool{}
	for _, id := range p.ClassFilter {
		allowed[id] = true
	}

	var boxes [][4]float32
	var scores []float32
	var classes []int

	n := len(output) / valuesPerBox
	for i := 0; i < n; i++ {
		offset := i * valuesPerBox

		bestClass := -1
		bestScore := float32(0)
		for c := 0; c < valuesPerBox-4; c++ {
			if len(allowed) > 0 && !allowed[c] {
				continue
			}
			if s := output[offset+4+c]; s > bestScore {
				bestScore = s
				bestClass = c
			}
		}
		if bestClass < 0 || float64(bestScore) < p.ConfThreshold {
			continue
		}

		cx := output[offset]
		cy := output[offset+1]
		w := output[offset+2]
		h := output[offset+3]
		boxes = append(boxes, [4]float32{cx - w/2, cy - h/2, cx + w/2, cy + h/2})
		scores = append(scores, bestScore)
		classes = append(classes, bestClass)
	}

	kept := nms(boxes, scores, nmsThreshold)

	// Map back to frame pixel space
	sx := float64(frame.Width) / float64(imgsz)
	sy := float64(frame.Height) / float64(imgsz)

	detections := make([]RawDetection, 0, len(kept))
	for _, i := range kept {
		detections = append(detections, RawDetection{
			Class: className(classes[i]),
			Conf:  float64(scores[i]),
			X1:    float64(boxes[i][0]) * sx,
			Y1:    float64(boxes[i][1]) * sy,
			X2:    float64(boxes[i][2]) * sx,
			Y2:    float64(boxes[i][3]) * sy,
		})
	}
	return detections
}

func className(id int) string {
	if id >= 0 && id < len(cocoLabels) {
		return cocoLabels[id]
	}
	return fmt.Sprintf("class_%d", id)
}

// nms returns the indices of boxes that survive greedy non-maximum
// suppression, highest score first.
func nms(boxes [][4]float32, scores []float32, threshold float32) []int {
	if len(boxes) == 0 {
		return nil
	}

	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.Slice(indices, func(i, j int) bool {
		return scores[indices[i]] > scores[indices[j]]
	})

	var keep []int
	suppressed := make([]bool, len(boxes))

	for _, i := range indices {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)

		for _, j := range indices {
			if !suppressed[j] && i != j {
				if iou(boxes[i], boxes[j]) > threshold {
					suppressed[j] = true
				}
			}
		}
	}
	return keep
}

// iou calculates Intersection over Union for two boxes in x1,y1,x2,y2 form.
func iou(a, b [4]float32) float32 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	if x2 < x1 || y2 < y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter

	if union == 0 {
		return 0
	}
	return inter / union
}
