package neural

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-chroma/estimator"
	"github.com/RyanBlaney/sonido-chroma/stream"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Precise model output mapping: bin i sits at centsScale*i + centsOffset
// cents above fMin.
const (
	centsScale  = 20.0
	centsOffset = 1997.3794084376191
)

// Lightweight model output mapping onto a constant-Q scale above fMin
const (
	ptSlope       = 63.07
	ptOffset      = 25.58
	binsPerOctave = 12.0
)

const fMin = 10.0

// ErrEmptyActivation is returned when a model produces an empty output head
var ErrEmptyActivation = errors.New("empty activation vector")

// Estimator turns frames into pitch estimates with one model
type Estimator struct {
	model Model
}

// NewEstimator wraps a model whose input is one stream frame
func NewEstimator(model Model) (*Estimator, error) {
	if model == nil {
		return nil, errors.New("nil model")
	}
	if !model.Kind().Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, model.Kind())
	}
	if model.InputSize() != stream.FrameSize {
		return nil, fmt.Errorf("model input size %d, frames have %d samples", model.InputSize(), stream.FrameSize)
	}
	return &Estimator{model: model}, nil
}

// Kind returns the wrapped model's kind
func (e *Estimator) Kind() Kind {
	return e.model.Kind()
}

// Estimate runs inference on one frame. Frames are fed to the model as-is,
// with no normalization.
func (e *Estimator) Estimate(ctx context.Context, frame *stream.Frame) (estimator.Pitch, error) {
	input := make([]float64, stream.FrameSize)
	for i, s := range frame {
		input[i] = float64(s)
	}

	out, err := e.model.Predict(ctx, input)
	if err != nil {
		return estimator.Pitch{}, err
	}

	kind := e.model.Kind()
	if len(out) < kind.Heads() {
		return estimator.Pitch{}, fmt.Errorf("%s model returned %d heads, want %d", kind, len(out), kind.Heads())
	}

	switch kind {
	case Lightweight:
		return decodeLightweight(out[0], out[1])
	default:
		return decodePrecise(out[0])
	}
}

// decodePrecise takes the strongest bin, refines it from its two neighbours,
// and converts the bin position to Hz. Confidence is the raw peak activation.
func decodePrecise(activations []float64) (estimator.Pitch, error) {
	if len(activations) == 0 {
		return estimator.Pitch{}, ErrEmptyActivation
	}

	maxIdx := floats.MaxIdx(activations)
	maxVal := activations[maxIdx]

	var adjustment float64
	if maxIdx > 0 && maxIdx < len(activations)-1 {
		prev, next := activations[maxIdx-1], activations[maxIdx+1]
		if denom := prev + next + maxVal; denom != 0 {
			adjustment = (next - prev) / denom
		}
	}

	cents := centsScale*(float64(maxIdx)+adjustment) + centsOffset
	return estimator.Pitch{
		Frequency:  fMin * math.Pow(2, cents/1200),
		Confidence: maxVal,
	}, nil
}

// decodeLightweight averages both heads. The mean pitch is mapped onto a
// constant-Q bin; confidence is one minus the mean uncertainty.
func decodeLightweight(pitch, uncertainty []float64) (estimator.Pitch, error) {
	if len(pitch) == 0 || len(uncertainty) == 0 {
		return estimator.Pitch{}, ErrEmptyActivation
	}

	cqtBin := stat.Mean(pitch, nil)*ptSlope + ptOffset
	return estimator.Pitch{
		Frequency:  fMin * math.Pow(2, cqtBin/binsPerOctave),
		Confidence: 1 - stat.Mean(uncertainty, nil),
	}, nil
}
