// Package detection turns camera frames into weapon detections on the
// event bus.
package detection

import "context"

// Detection is a bounding box in normalized image coordinates.
type Detection struct {
	X, Y       float64 // Top-left corner (0-1 normalized)
	W, H       float64 // Width and height (0-1 normalized)
	Confidence float64 // Detection confidence (0-1)
}

// Center returns the center point of the detection
func (d Detection) Center() (x, y float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the area of the bounding box
func (d Detection) Area() float64 {
	return d.W * d.H
}

// ObjectDetection is a detection with class info.
type ObjectDetection struct {
	Detection
	ClassID   int    // COCO class ID
	ClassName string // Human-readable class name
}

// Detector is the interface for object detection backends.
type Detector interface {
	// Detect finds objects in a JPEG frame.
	Detect(jpeg []byte) ([]ObjectDetection, error)

	// Close releases resources
	Close() error
}

// FrameSource yields the most recent camera frame as JPEG bytes.
type FrameSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// DefaultWeaponClasses are the COCO classes reported as weapons.
var DefaultWeaponClasses = []string{"knife", "scissors", "baseball bat"}

// SubtypeWeapon is the detection subtype the dispatcher classifies as a weapon.
const SubtypeWeapon = "weapon"
