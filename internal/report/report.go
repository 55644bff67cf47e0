// Package report persists the outcome of a compression run next to its
// outputs so a viewer can pair originals with compressed files.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/Ewasince/photo-compresser/internal/compressor"
	"github.com/Ewasince/photo-compresser/internal/profile"
	"github.com/Ewasince/photo-compresser/internal/statistics"
)

// FileName is the report file written into the output root.
const FileName = "compression_settings.json"

// Settings are the run parameters needed to reproduce a run.
type Settings struct {
	InputDirectory       string `json:"input_directory"`
	OutputDirectory      string `json:"output_directory"`
	PreserveStructure    bool   `json:"preserve_structure"`
	UnsupportedPolicy    string `json:"unsupported_policy"`
	CopyUnsupported      bool   `json:"copy_unsupported"`
	CopyUnsupportedToDir bool   `json:"copy_unsupported_to_dir"`
	UnsupportedDir       string `json:"unsupported_dir,omitempty"`
	Workers              int    `json:"workers"`
}

// ImagePair links an original to its compressed output.
type ImagePair struct {
	Original         string          `json:"original"`
	Compressed       string          `json:"compressed"`
	OriginalName     string          `json:"original_name"`
	CompressedName   string          `json:"compressed_name"`
	Profile          string          `json:"profile"`
	ConditionResults map[string]bool `json:"condition_results"`
}

// Report is the document stored in FileName.
type Report struct {
	RunID           string                   `json:"run_id"`
	Status          compressor.Status        `json:"status"`
	Settings        Settings                 `json:"compression_settings"`
	Profiles        profile.Registry         `json:"profiles"`
	CompressionDate time.Time                `json:"compression_date"`
	ImagePairs      []ImagePair              `json:"image_pairs"`
	TotalPairs      int                      `json:"total_pairs"`
	FailedFiles     []compressor.Failure     `json:"failed_files"`
	Stats           statistics.RunStatistics `json:"stats"`
}

// PairsFrom converts the driver's pairs into report pairs.
func PairsFrom(pairs []compressor.Pair) []ImagePair {
	out := make([]ImagePair, 0, len(pairs))
	for _, p := range pairs {
		conditions := p.Conditions
		if conditions == nil {
			conditions = map[string]bool{}
		}
		out = append(out, ImagePair{
			Original:         p.Source,
			Compressed:       p.Output,
			OriginalName:     filepath.Base(p.Source),
			CompressedName:   filepath.Base(p.Output),
			Profile:          p.Profile,
			ConditionResults: conditions,
		})
	}
	return out
}

// PairFor returns the pair whose original or compressed path is path.
func (r *Report) PairFor(path string) (ImagePair, bool) {
	clean := filepath.Clean(path)
	for _, p := range r.ImagePairs {
		if filepath.Clean(p.Original) == clean || filepath.Clean(p.Compressed) == clean {
			return p, true
		}
	}
	return ImagePair{}, false
}

// Path returns the report location for an output root.
func Path(outputRoot string) string {
	return filepath.Join(outputRoot, FileName)
}

// Write stores r in outputRoot and returns the file path.
func Write(outputRoot string, r Report) (string, error) {
	if r.ImagePairs == nil {
		r.ImagePairs = []ImagePair{}
	}
	if r.FailedFiles == nil {
		r.FailedFiles = []compressor.Failure{}
	}
	if r.Profiles == nil {
		r.Profiles = profile.Registry{}
	}
	r.TotalPairs = len(r.ImagePairs)
	if r.CompressionDate.IsZero() {
		r.CompressionDate = time.Now()
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.MkdirAll(outputRoot, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := Path(outputRoot)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Read loads a report file.
func Read(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}
