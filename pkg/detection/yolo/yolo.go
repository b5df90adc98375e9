// Package yolo runs YOLOv8 ONNX models through OpenCV's DNN module.
package yolo

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"github.com/teslashibe/go-guardian/pkg/detection"
	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when a frame decodes to nothing.
var ErrEmptyImage = errors.New("yolo: empty image")

// Config holds YOLO detector configuration.
type Config struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultConfig returns production defaults for YOLOv8n
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// Detector uses YOLOv8 for general object detection.
type Detector struct {
	net       gocv.Net
	config    Config
	mu        sync.Mutex
	inputSize image.Point
	logger    *slog.Logger
}

var _ detection.Detector = (*Detector)(nil)

// New loads the ONNX model at cfg.ModelPath.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	if logger == nil {
		logger = slog.Default()
	}

	return &Detector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		logger:    logger.With("component", "yolo"),
	}, nil
}

// Detect finds objects in the JPEG image
func (d *Detector) Detect(jpeg []byte) ([]detection.ObjectDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, ErrEmptyImage
	}

	imgW := float32(img.Cols())
	imgH := float32(img.Rows())

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	// Output shape: [1, 84, 8400] - 84 = 4 bbox + 80 classes, 8400 candidates
	dets := d.parseOutput(output, imgW, imgH)

	if len(dets) > 0 {
		d.logger.Debug("objects found", "count", len(dets))
	}

	return dets, nil
}

func (d *Detector) parseOutput(output gocv.Mat, imgW, imgH float32) []detection.ObjectDetection {
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	rows := output.Cols() // candidates
	cols := output.Rows() // 4 bbox + class scores

	data, err := output.DataPtrFloat32()
	if err != nil {
		d.logger.Warn("read output tensor", "error", err)
		return nil
	}

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0

		for c := 4; c < cols; c++ {
			score := data[c*rows+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}

		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * imgW / float32(d.config.InputWidth))
		y1 := int((cy - h/2) * imgH / float32(d.config.InputHeight))
		x2 := int((cx + w/2) * imgW / float32(d.config.InputWidth))
		y2 := int((cy + h/2) * imgH / float32(d.config.InputHeight))

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	dets := make([]detection.ObjectDetection, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		dets = append(dets, detection.ObjectDetection{
			Detection: detection.Detection{
				X:          float64(box.Min.X) / float64(imgW),
				Y:          float64(box.Min.Y) / float64(imgH),
				W:          float64(box.Dx()) / float64(imgW),
				H:          float64(box.Dy()) / float64(imgH),
				Confidence: float64(confidences[idx]),
			},
			ClassID:   classIDs[idx],
			ClassName: ClassName(classIDs[idx]),
		})
	}

	return dets
}

// Close releases the detector resources
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}

// ClassName maps a COCO class ID to its name.
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return fmt.Sprintf("class_%d", id)
	}
	return COCOClasses[id]
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
