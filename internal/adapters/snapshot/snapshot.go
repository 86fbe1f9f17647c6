// Package snapshot reads and writes roster/catalog snapshots and pass results
// as YAML files, for seeding the server and for offline runs.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/seatalloc/internal/domain/allocation"
	"github.com/okian/seatalloc/internal/domain/model"
)

// ErrEmptySnapshot is returned for a document without any content.
var ErrEmptySnapshot = errors.New("snapshot is empty")

// Snapshot is one category's roster and catalog.
type Snapshot struct {
	Category    model.Category    `yaml:"category"`
	MeritMetric string            `yaml:"merit_metric,omitempty"`
	Resources   []model.Resource  `yaml:"resources"`
	Applicants  []model.Applicant `yaml:"applicants"`
}

// File holds one or more category snapshots.
type File struct {
	Categories []Snapshot `yaml:"categories"`
}

// Result is the outcome of an offline pass.
type Result struct {
	Category    model.Category                  `yaml:"category"`
	Report      allocation.Report               `yaml:"report"`
	Order       []string                        `yaml:"order"`
	Assignments map[string]allocation.Placement `yaml:"assignments"`
	Resources   []model.Resource                `yaml:"resources"`
}

// NewResult wraps an engine result for writing.
func NewResult(category model.Category, res allocation.Result) Result {
	return Result{
		Category:    category,
		Report:      res.Report,
		Order:       res.Order,
		Assignments: res.Assignments,
		Resources:   res.Resources,
	}
}

// Decode reads a snapshot file. Unknown keys are rejected and category
// spellings are normalised.
func Decode(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, ErrEmptySnapshot
		}
		return File{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(f.Categories) == 0 {
		return File{}, ErrEmptySnapshot
	}
	for i := range f.Categories {
		c, err := model.ParseCategory(string(f.Categories[i].Category))
		if err != nil {
			return File{}, fmt.Errorf("snapshot entry %d: %w", i, err)
		}
		f.Categories[i].Category = c
	}
	return f, nil
}

// Load reads a snapshot file from disk.
func Load(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer fh.Close()
	return Decode(fh)
}

// DecodeResult reads a result written by Encode.
func DecodeResult(r io.Reader) (Result, error) {
	var res Result
	if err := yaml.NewDecoder(r).Decode(&res); err != nil {
		if errors.Is(err, io.EOF) {
			return Result{}, ErrEmptySnapshot
		}
		return Result{}, fmt.Errorf("decode result: %w", err)
	}
	return res, nil
}

// LoadResult reads a result file from disk.
func LoadResult(path string) (Result, error) {
	fh, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer fh.Close()
	return DecodeResult(fh)
}

// Encode writes v as YAML with two-space indentation.
func Encode(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// Save writes v to path, or to stdout when path is "" or "-".
func Save(path string, v any) error {
	if path == "" || path == "-" {
		return Encode(os.Stdout, v)
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(fh, v); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}
