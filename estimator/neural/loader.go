package neural

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// ManifestName is the file describing a model inside its kind directory
const ManifestName = "model.json"

// Loader produces a model of the given kind
type Loader interface {
	Load(ctx context.Context, kind Kind) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface
type LoaderFunc func(ctx context.Context, kind Kind) (Model, error)

func (f LoaderFunc) Load(ctx context.Context, kind Kind) (Model, error) {
	return f(ctx, kind)
}

type manifest struct {
	Kind      Kind          `json:"kind"`
	InputSize int           `json:"input_size"`
	Trunk     []layerSpec   `json:"trunk"`
	Heads     [][]layerSpec `json:"heads"`
}

type layerSpec struct {
	Weights    string     `json:"weights"`
	Bias       string     `json:"bias,omitempty"`
	Activation Activation `json:"activation,omitempty"`
}

// FSLoader reads models laid out as
//
//	<kind>/model.json
//	<kind>/<layer>.weights   gonum Dense binary
//	<kind>/<layer>.bias      gonum VecDense binary
type FSLoader struct {
	FS fs.FS
}

// NewDirLoader loads models from a directory on disk
func NewDirLoader(root string) *FSLoader {
	return &FSLoader{FS: os.DirFS(root)}
}

// Load reads and validates the model for kind
func (l *FSLoader) Load(ctx context.Context, kind Kind) (Model, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	dir := string(kind)
	raw, err := fs.ReadFile(l.FS, path.Join(dir, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Kind != kind {
		return nil, fmt.Errorf("manifest describes a %q model, want %q", m.Kind, kind)
	}

	trunk, err := l.loadLayers(ctx, dir, m.Trunk)
	if err != nil {
		return nil, fmt.Errorf("trunk: %w", err)
	}
	heads := make([][]Layer, len(m.Heads))
	for h, specs := range m.Heads {
		if heads[h], err = l.loadLayers(ctx, dir, specs); err != nil {
			return nil, fmt.Errorf("head %d: %w", h, err)
		}
	}

	return NewNetwork(kind, m.InputSize, trunk, heads)
}

func (l *FSLoader) loadLayers(ctx context.Context, dir string, specs []layerSpec) ([]Layer, error) {
	layers := make([]Layer, 0, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		w := new(mat.Dense)
		if err := l.readMatrix(path.Join(dir, spec.Weights), w); err != nil {
			return nil, err
		}
		layer := Layer{Weights: w, Activation: spec.Activation}

		if spec.Bias != "" {
			b := new(mat.VecDense)
			if err := l.readMatrix(path.Join(dir, spec.Bias), b); err != nil {
				return nil, err
			}
			layer.Bias = b
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

type binaryReader interface {
	UnmarshalBinaryFrom(r io.Reader) (int, error)
}

func (l *FSLoader) readMatrix(name string, dst binaryReader) error {
	f, err := l.FS.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := dst.UnmarshalBinaryFrom(f); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

type binaryWriter interface {
	MarshalBinaryTo(w io.Writer) (int, error)
}

// WriteNetwork stores n under root/<kind>/ in the layout FSLoader reads
func WriteNetwork(root string, n *Network) error {
	dir := filepath.Join(root, string(n.kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	m := manifest{Kind: n.kind, InputSize: n.inputSize}

	var err error
	if m.Trunk, err = writeLayers(dir, "trunk", n.trunk); err != nil {
		return err
	}
	for h, head := range n.heads {
		specs, err := writeLayers(dir, fmt.Sprintf("head%d", h), head)
		if err != nil {
			return err
		}
		m.Heads = append(m.Heads, specs)
	}

	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestName), raw, 0o644)
}

func writeLayers(dir, prefix string, layers []Layer) ([]layerSpec, error) {
	specs := make([]layerSpec, 0, len(layers))
	for i, l := range layers {
		spec := layerSpec{
			Weights:    fmt.Sprintf("%s-%d.weights", prefix, i),
			Activation: l.Activation,
		}
		if err := writeMatrix(filepath.Join(dir, spec.Weights), l.Weights); err != nil {
			return nil, err
		}
		if l.Bias != nil {
			spec.Bias = fmt.Sprintf("%s-%d.bias", prefix, i)
			if err := writeMatrix(filepath.Join(dir, spec.Bias), l.Bias); err != nil {
				return nil, err
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func writeMatrix(name string, src binaryWriter) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if _, err := src.MarshalBinaryTo(f); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return f.Close()
}
