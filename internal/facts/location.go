package facts

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// FieldSpec configures one location/placement fact: a driver spec plus
// a regex with named capture groups. Required fields abort the run on
// extraction failure; optional ones are skipped.
type FieldSpec struct {
	Driver   string `json:"driver"`
	Regex    string `json:"regex"`
	Required bool   `json:"required,omitempty"`
}

// ResolveLocation executes every configured field driver and merges
// the named capture groups into one key→value map. Later fields do not
// override earlier extractions of the same key; field specs are
// expected to produce disjoint keys.
func (r *Registry) ResolveLocation(ctx context.Context, specs map[string]FieldSpec) (map[string]string, error) {
	logger := zap.S().Named("facts")
	resolved := map[string]string{}

	for field, spec := range specs {
		driver, err := ParseDriver(spec.Driver)
		if err != nil {
			if spec.Required {
				return nil, errors.Wrapf(err, "required location field %q", field)
			}
			logger.Warnf("skipping location field %q: %v", field, err)
			continue
		}

		values, err := r.Extract(ctx, driver, spec.Regex)
		if err != nil {
			if spec.Required {
				return nil, errors.Wrapf(err, "required location field %q", field)
			}
			logger.Debugf("skipping location field %q: %v", field, err)
			continue
		}

		for k, v := range values {
			if _, ok := resolved[k]; !ok {
				resolved[k] = v
			}
		}
	}

	return resolved, nil
}
