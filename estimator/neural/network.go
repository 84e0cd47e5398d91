package neural

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// Model is a loaded inference model
type Model interface {
	// Kind returns the model variant
	Kind() Kind

	// InputSize returns the expected input length
	InputSize() int

	// Predict runs one forward pass and returns one activation vector per
	// output head. The returned slices belong to the caller.
	Predict(ctx context.Context, input []float64) ([][]float64, error)
}

// Activation is an element-wise layer non-linearity
type Activation string

const (
	Linear  Activation = "linear"
	ReLU    Activation = "relu"
	Sigmoid Activation = "sigmoid"
	Tanh    Activation = "tanh"
)

func (a Activation) valid() bool {
	switch a {
	case "", Linear, ReLU, Sigmoid, Tanh:
		return true
	}
	return false
}

func (a Activation) apply(x []float64) {
	switch a {
	case ReLU:
		for i, v := range x {
			if v < 0 {
				x[i] = 0
			}
		}
	case Sigmoid:
		for i, v := range x {
			x[i] = 1 / (1 + math.Exp(-v))
		}
	case Tanh:
		for i, v := range x {
			x[i] = math.Tanh(v)
		}
	}
}

// Layer is a dense layer: y = activation(W*x + b).
// Weights is outputs x inputs; Bias may be nil.
type Layer struct {
	Weights    *mat.Dense
	Bias       *mat.VecDense
	Activation Activation
}

func (l Layer) outputs() int {
	r, _ := l.Weights.Dims()
	return r
}

func (l Layer) forward(dst, x *mat.VecDense) {
	dst.MulVec(l.Weights, x)
	if l.Bias != nil {
		dst.AddVec(dst, l.Bias)
	}
	l.Activation.apply(dst.RawVector().Data)
}

// Network is a feed-forward network with a shared trunk and one or more
// output heads.
//
// Intermediate vectors live in a pooled workspace: every Predict takes one and
// returns it before returning, whether the call succeeds, fails or panics.
// Only the head outputs are allocated per call. A Network is safe for
// concurrent use.
type Network struct {
	kind      Kind
	inputSize int
	trunk     []Layer
	heads     [][]Layer

	workspaces sync.Pool
}

type workspace struct {
	input   *mat.VecDense
	outputs []*mat.VecDense
}

// NewNetwork validates the layer shapes and builds a network
func NewNetwork(kind Kind, inputSize int, trunk []Layer, heads [][]Layer) (*Network, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if inputSize <= 0 {
		return nil, fmt.Errorf("input size must be positive, got %d", inputSize)
	}
	if len(heads) != kind.Heads() {
		return nil, fmt.Errorf("%s model needs %d output heads, got %d", kind, kind.Heads(), len(heads))
	}

	size, err := checkLayers("trunk", inputSize, trunk)
	if err != nil {
		return nil, err
	}
	for h, head := range heads {
		if _, err := checkLayers(fmt.Sprintf("head %d", h), size, head); err != nil {
			return nil, err
		}
	}

	n := &Network{
		kind:      kind,
		inputSize: inputSize,
		trunk:     trunk,
		heads:     heads,
	}
	n.workspaces.New = func() any { return n.newWorkspace() }
	return n, nil
}

func checkLayers(name string, in int, layers []Layer) (int, error) {
	for i, l := range layers {
		if l.Weights == nil {
			return 0, fmt.Errorf("%s layer %d: missing weights", name, i)
		}
		r, c := l.Weights.Dims()
		if c != in {
			return 0, fmt.Errorf("%s layer %d: expects %d inputs, previous layer gives %d", name, i, c, in)
		}
		if l.Bias != nil && l.Bias.Len() != r {
			return 0, fmt.Errorf("%s layer %d: bias length %d, want %d", name, i, l.Bias.Len(), r)
		}
		if !l.Activation.valid() {
			return 0, fmt.Errorf("%s layer %d: unknown activation %q", name, i, l.Activation)
		}
		in = r
	}
	return in, nil
}

func (n *Network) newWorkspace() *workspace {
	ws := &workspace{input: mat.NewVecDense(n.inputSize, nil)}
	for _, l := range n.trunk {
		ws.outputs = append(ws.outputs, mat.NewVecDense(l.outputs(), nil))
	}
	for _, head := range n.heads {
		for _, l := range head {
			ws.outputs = append(ws.outputs, mat.NewVecDense(l.outputs(), nil))
		}
	}
	return ws
}

// Kind returns the model variant
func (n *Network) Kind() Kind {
	return n.kind
}

// InputSize returns the expected input length
func (n *Network) InputSize() int {
	return n.inputSize
}

// Predict runs one forward pass. An input of the wrong length is a programming
// error and panics.
func (n *Network) Predict(ctx context.Context, input []float64) ([][]float64, error) {
	if len(input) != n.inputSize {
		panic(fmt.Sprintf("neural: input length %d, model expects %d", len(input), n.inputSize))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ws := n.workspaces.Get().(*workspace)
	defer n.workspaces.Put(ws)

	copy(ws.input.RawVector().Data, input)

	slot := 0
	x := ws.input
	for _, l := range n.trunk {
		l.forward(ws.outputs[slot], x)
		x = ws.outputs[slot]
		slot++
	}

	trunk := x
	out := make([][]float64, len(n.heads))
	for h, head := range n.heads {
		x = trunk
		for _, l := range head {
			l.forward(ws.outputs[slot], x)
			x = ws.outputs[slot]
			slot++
		}
		out[h] = append([]float64(nil), x.RawVector().Data...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
