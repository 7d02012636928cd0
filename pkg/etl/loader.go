package etl

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/yarrow-bio/yarrow/pkg/models"
)

// SourceFile is a pre-normalized extract for one source: the release
// metadata plus every record in the extract. Producing these files is the
// job of the per-source extraction pipelines.
type SourceFile struct {
	Meta    models.SourceMeta `json:"meta"`
	Records []models.Therapy  `json:"records"`
}

// LoadSourceFile reads one extract file from disk.
func LoadSourceFile(path string) (*SourceFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}

	var file SourceFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse source file %s: %w", path, err)
	}

	if !file.Meta.Source.Valid() {
		return nil, fmt.Errorf("source file %s names unknown source %q", path, file.Meta.Source)
	}

	return &file, nil
}
