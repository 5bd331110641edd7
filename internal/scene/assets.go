package scene

import (
	"context"
	"fmt"
)

// Asset is a loaded virtual-object model.
type Asset struct {
	ID   string
	Name string
}

// AssetLoader resolves asset ids. Failures should wrap ErrAssetLoad.
type AssetLoader interface {
	Load(ctx context.Context, id string) (Asset, error)
}

// AssetLoaderFunc adapts a function to the AssetLoader interface.
type AssetLoaderFunc func(ctx context.Context, id string) (Asset, error)

// Load calls f(ctx, id).
func (f AssetLoaderFunc) Load(ctx context.Context, id string) (Asset, error) {
	return f(ctx, id)
}

// StaticAssets is a fixed catalogue keyed by asset id.
type StaticAssets map[string]Asset

// Load returns the catalogued asset or ErrAssetLoad.
func (s StaticAssets) Load(ctx context.Context, id string) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	a, ok := s[id]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q not in catalogue", ErrAssetLoad, id)
	}
	return a, nil
}

// DefaultAssets holds the bundled pet model.
func DefaultAssets() StaticAssets {
	return StaticAssets{
		"JCUBE_Maneki": {ID: "JCUBE_Maneki", Name: "Maneki-neko"},
	}
}
