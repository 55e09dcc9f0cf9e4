package snapconfig

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

const ConfigEnvVar = EnvPrefix + "_CONFIG"

// Resolver finds the path of the configuration file.
type Resolver interface {
	// Resolve returns a path, or "" if this resolver has none to offer.
	Resolve() (string, error)
}

// ConstantResolver always returns the same path, typically the --config flag.
type ConstantResolver struct {
	s string
}

func NewConstantResolver(s string) *ConstantResolver {
	return &ConstantResolver{s: s}
}

func (r *ConstantResolver) Resolve() (string, error) {
	return r.s, nil
}

// EnvResolver resolves by looking for a key in the OS Environment
type EnvResolver struct {
	key string
}

func NewEnvResolver(key string) *EnvResolver {
	return &EnvResolver{key: key}
}

func (r *EnvResolver) Resolve() (string, error) {
	return os.Getenv(r.key), nil
}

// ExistingFileResolver returns path only if it exists on fs.
type ExistingFileResolver struct {
	fs   afero.Fs
	path string
}

func NewExistingFileResolver(fs afero.Fs, path string) *ExistingFileResolver {
	return &ExistingFileResolver{fs: fs, path: path}
}

func (r *ExistingFileResolver) Resolve() (string, error) {
	ok, err := afero.Exists(r.fs, r.path)
	if err != nil || !ok {
		return "", err
	}
	return r.path, nil
}

// CompositeResolver resolves by resolving, in order, via delegates
type CompositeResolver struct {
	dels []Resolver
}

func NewCompositeResolver(dels ...Resolver) *CompositeResolver {
	return &CompositeResolver{dels: dels}
}

func (r *CompositeResolver) Resolve() (string, error) {
	for _, r := range r.dels {
		if s, err := r.Resolve(); s != "" || err != nil {
			return s, err
		}
	}
	return "", fmt.Errorf("could not resolve: no delegate resolved: %v", r.dels)
}

// ResolvePath picks the config file: flagValue if set, else $SNAPKEEP_CONFIG,
// else DefaultConfigPath if it exists. "" means run on defaults alone.
func ResolvePath(fs afero.Fs, flagValue string) string {
	path, err := NewCompositeResolver(
		NewConstantResolver(flagValue),
		NewEnvResolver(ConfigEnvVar),
		NewExistingFileResolver(fs, DefaultConfigPath),
	).Resolve()
	if err != nil {
		return ""
	}
	return path
}
