// Package sites loads the listing-source descriptors that drive a search run.
package sites

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/seq-capital/dealflow-cli/internal/model"
)

// DefaultGL is the search country code applied when a source doesn't set one.
const DefaultGL = "au"

// Load reads, validates and filters source descriptors from a YAML file.
// Disabled sources are dropped after validation, so a broken descriptor is
// reported even while switched off.
func Load(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sites: read %s", path)
	}
	sources, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "sites: %s", path)
	}
	return sources, nil
}

// Parse decodes and validates source descriptors from YAML. Decoding is
// strict: an unknown key is fatal, so a typo'd `quieries:` can't silently
// drop a source's search terms. Any invalid descriptor is fatal too: a
// half-loaded source list would silently shrink a run's coverage.
func Parse(data []byte) ([]model.Source, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var all []model.Source
	if err := dec.Decode(&all); err != nil {
		return nil, eris.Wrap(err, "sites: parse yaml")
	}

	var errs []string
	seen := make(map[string]struct{}, len(all))
	for i, src := range all {
		label := fmt.Sprintf("source[%d]", i)
		name := strings.TrimSpace(src.Name)
		if name == "" {
			errs = append(errs, label+": name missing")
		} else {
			label = fmt.Sprintf("%s (%s)", label, name)
			if _, dup := seen[name]; dup {
				errs = append(errs, label+": duplicate name")
			}
			seen[name] = struct{}{}
		}
		if len(src.Queries) == 0 {
			errs = append(errs, label+": queries missing")
		}
		for j, q := range src.Queries {
			if strings.TrimSpace(q) == "" {
				errs = append(errs, fmt.Sprintf("%s: queries[%d] blank", label, j))
			}
		}
	}
	if len(errs) > 0 {
		return nil, eris.Errorf("sites: validation failed: %s", strings.Join(errs, "; "))
	}

	enabled := make([]model.Source, 0, len(all))
	for _, src := range all {
		if src.Disabled {
			zap.L().Info("sites: skipping disabled source", zap.String("source", src.Name))
			continue
		}
		if src.GL == "" {
			src.GL = DefaultGL
		}
		enabled = append(enabled, src)
	}
	if len(enabled) == 0 {
		return nil, eris.New("sites: no enabled sources")
	}
	return enabled, nil
}
