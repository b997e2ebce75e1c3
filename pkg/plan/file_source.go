package plan

import (
	"bytes"
	"context"
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

type fileSource struct {
	path string
}

// NewFileSource returns a Source that reads plans from a YAML file on every Load:
//
//	plans:
//	  - name: basic
//	    price_id: price_basic_monthly
//	    limits:
//	      tokens: 100
//	    price:
//	      amount: 900
//	      currency: USD
//	    features: [chat]
func NewFileSource(path string) Source {
	if path == "" {
		panic("plan: file path is required")
	}
	return &fileSource{path: path}
}

func (s *fileSource) Load(ctx context.Context) ([]Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToReadPlanFile, err)
	}

	return ParseYAML(data)
}

// ParseYAML decodes a plan document. Unknown fields are rejected.
func ParseYAML(data []byte) ([]Plan, error) {
	var doc struct {
		Plans []Plan `yaml:"plans"`
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Join(ErrFailedToParsePlanFile, err)
	}

	return doc.Plans, nil
}
