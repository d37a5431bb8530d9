package model

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/quakesim/internal/artifact"
)

// LoadOptions controls where bundles and their side files come from.
type LoadOptions struct {
	Artifact artifact.Config
	// CacheDir receives remote ONNX files, since ONNX Runtime reads from disk.
	CacheDir string
	Options  []Option
}

// Load fetches the bundle at uri and builds a Model. A relative ONNX path is
// resolved next to the bundle and downloaded when the bundle is remote.
func Load(ctx context.Context, uri string, opts LoadOptions) (*Model, error) {
	loc, err := artifact.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	data, err := artifact.Fetch(ctx, loc.String(), opts.Artifact)
	if err != nil {
		return nil, fmt.Errorf("fetch model bundle %s: %w", loc, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if b.ONNX != nil {
		onnxLoc, err := loc.Sibling(b.ONNX.Path)
		if err != nil {
			return nil, err
		}
		local, err := artifact.FetchToFile(ctx, onnxLoc, opts.CacheDir, opts.Artifact)
		if err != nil {
			return nil, fmt.Errorf("fetch onnx model %s: %w", onnxLoc, err)
		}
		b.ONNX.Path = local
	}

	return New(b, opts.Options...)
}
