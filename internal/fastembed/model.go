// Package fastembed is the embedding runtime behind the fastembed provider
// kinds: a registry of model descriptors, a Hugging Face style artifact cache
// and the inference engines that turn text into vectors.
package fastembed

import (
	"errors"
	"fmt"
	"strings"
)

// Pooling is the strategy used to reduce token embeddings to one vector.
type Pooling string

const (
	PoolingMean Pooling = "mean"
	PoolingCLS  Pooling = "cls"
)

// DefaultTokenizerFiles are fetched next to the model file for every model.
var DefaultTokenizerFiles = []string{
	"config.json",
	"tokenizer.json",
	"tokenizer_config.json",
	"special_tokens_map.json",
}

// ModelDescriptor describes one embedding model known to the runtime.
type ModelDescriptor struct {
	// Name selects the model, e.g. "sentence-transformers/all-MiniLM-L6-v2".
	Name string
	// Source is the hub repository the artifacts are downloaded from.
	Source    string
	Dim       int
	Pooling   Pooling
	Normalize bool
	ModelFile string
	// AdditionalFiles are required besides ModelFile, e.g. external weights.
	AdditionalFiles []string
	// TokenizerFiles defaults to DefaultTokenizerFiles when nil.
	TokenizerFiles []string
}

// RequiredFiles lists every file that must be present for a cache hit.
func (d ModelDescriptor) RequiredFiles() []string {
	tok := d.TokenizerFiles
	if tok == nil {
		tok = DefaultTokenizerFiles
	}
	files := make([]string, 0, len(tok)+1+len(d.AdditionalFiles))
	files = append(files, tok...)
	files = append(files, d.ModelFile)
	files = append(files, d.AdditionalFiles...)
	return files
}

// ShortName is the last path segment of Name, lower-cased.
func (d ModelDescriptor) ShortName() string {
	name := d.Name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

func (d ModelDescriptor) validate() error {
	var problems []error
	if d.Name == "" {
		problems = append(problems, errors.New("name is required"))
	}
	if d.Source == "" {
		problems = append(problems, errors.New("source is required"))
	}
	if d.Dim <= 0 {
		problems = append(problems, fmt.Errorf("dimension must be positive, got %d", d.Dim))
	}
	if d.ModelFile == "" {
		problems = append(problems, errors.New("model file is required"))
	}
	switch d.Pooling {
	case PoolingMean, PoolingCLS:
	default:
		problems = append(problems, fmt.Errorf("unsupported pooling %q", d.Pooling))
	}
	if len(problems) > 0 {
		return fmt.Errorf("fastembed: invalid model %q: %w", d.Name, errors.Join(problems...))
	}
	return nil
}
