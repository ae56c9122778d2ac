package upscale

import (
	"errors"
)

// Validation errors. Returned before any file is decoded or any GPU object
// is created.
var (
	// ErrInputNotFound is returned when the input path does not exist.
	ErrInputNotFound = errors.New("upscale: input file does not exist")

	// ErrInputInaccessible is returned when the input path exists but
	// cannot be examined, for example for lack of permission.
	ErrInputInaccessible = errors.New("upscale: input file is not accessible")

	// ErrInvalidFactor is returned when the factor is outside [MinFactor, MaxFactor].
	ErrInvalidFactor = errors.New("upscale: invalid upscale factor")
)

// Driver and context errors. Terminal; the underlying cause is wrapped.
var (
	// ErrDriverNotFound is returned when the platform needs a portability
	// driver and none was found on the search path.
	ErrDriverNotFound = errors.New("upscale: GPU driver not found")

	// ErrNoComputeDevice is returned when no device exposes a compute queue.
	ErrNoComputeDevice = errors.New("upscale: no compute-capable device found")

	// ErrContext is returned for any other failure while creating the
	// instance, device or pipeline, including an unusable kernel binary.
	ErrContext = errors.New("upscale: GPU context creation failed")
)

// Resource errors. Raised mid-pipeline after every object created so far
// has been released.
var (
	// ErrNoMemoryType is returned when no host-visible, host-coherent
	// memory type is compatible with a buffer.
	ErrNoMemoryType = errors.New("upscale: no compatible memory type")

	// ErrResource is returned for allocation, mapping, limit and dispatch
	// failures.
	ErrResource = errors.New("upscale: GPU resource failure")
)

// I/O errors.
var (
	// ErrDecode is returned when the input image cannot be read or decoded.
	ErrDecode = errors.New("upscale: decode input image")

	// ErrEncode is returned when the output image cannot be written.
	ErrEncode = errors.New("upscale: write output image")
)

// ErrorKind classifies errors returned by this package.
type ErrorKind int

const (
	// KindUnknown is any error not produced by this package.
	KindUnknown ErrorKind = iota
	// KindValidation is a rejected input; nothing was touched.
	KindValidation
	// KindDriver is a driver discovery or GPU context failure.
	KindDriver
	// KindResource is a memory, limit or dispatch failure.
	KindResource
	// KindIO is an image decode or encode failure.
	KindIO
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindDriver:
		return "driver"
	case KindResource:
		return "resource"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInputNotFound, KindValidation},
	{ErrInputInaccessible, KindValidation},
	{ErrInvalidFactor, KindValidation},
	{ErrDriverNotFound, KindDriver},
	{ErrNoComputeDevice, KindDriver},
	{ErrContext, KindDriver},
	{ErrNoMemoryType, KindResource},
	{ErrResource, KindResource},
	{ErrDecode, KindIO},
	{ErrEncode, KindIO},
}

// Kind returns the class of err. Nil and foreign errors are KindUnknown.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
