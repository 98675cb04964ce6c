package facts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// DriverFailure classifies why a driver extraction failed.
type DriverFailure string

const (
	// DriverNotFound means the command or file named by the spec does
	// not exist.
	DriverNotFound DriverFailure = "NotFound"
	// DriverExecutionFailed means the source exists but reading or
	// running it failed, or the extraction could not run at all
	// (invalid regex).
	DriverExecutionFailed DriverFailure = "ExecutionFailed"
	// DriverNoMatch means the regex did not match the collected text.
	DriverNoMatch DriverFailure = "NoMatch"
)

// DriverError reports a failed fact extraction. Extraction is never
// retried: location and config facts are assumed stable within a run.
type DriverError struct {
	Failure DriverFailure
	Spec    string
	Err     error
}

func (e *DriverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver %q: %s: %v", e.Spec, e.Failure, e.Err)
	}
	return fmt.Sprintf("driver %q: %s", e.Spec, e.Failure)
}

func (e *DriverError) Unwrap() error { return e.Err }

// DriverKind is the closed set of extraction strategies.
type DriverKind string

const (
	DriverCommand DriverKind = "command"
	DriverFile    DriverKind = "file"
	DriverCustom  DriverKind = "custom"
)

// Driver is one parsed driver spec of the form "<kind>:<source>".
type Driver struct {
	Kind   DriverKind
	Source string
	spec   string
}

// Extractor produces raw text for a custom driver source.
type Extractor func(ctx context.Context, source string) (string, error)

// Registry maps driver kinds to collectors. Custom extractors are an
// explicit extension point registered by name.
type Registry struct {
	custom map[string]Extractor
}

func NewRegistry() *Registry {
	return &Registry{custom: map[string]Extractor{}}
}

// RegisterCustom installs a named custom extractor. A custom driver
// spec "custom:<name>" resolves against this table.
func (r *Registry) RegisterCustom(name string, fn Extractor) {
	r.custom[name] = fn
}

// ParseDriver splits a "<kind>:<source>" spec.
func ParseDriver(spec string) (Driver, error) {
	kind, source, found := strings.Cut(spec, ":")
	if !found || source == "" {
		return Driver{}, errors.Errorf("invalid driver spec %q: want \"<kind>:<source>\"", spec)
	}
	switch DriverKind(kind) {
	case DriverCommand, DriverFile, DriverCustom:
		return Driver{Kind: DriverKind(kind), Source: source, spec: spec}, nil
	default:
		return Driver{}, errors.Errorf("unknown driver kind %q in spec %q", kind, spec)
	}
}

// Extract collects text through the driver and applies pattern, a
// regex with named capture groups. It returns one value per named
// group. The error, when non-nil, is always a *DriverError.
func (r *Registry) Extract(ctx context.Context, d Driver, pattern string) (map[string]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &DriverError{Failure: DriverExecutionFailed, Spec: d.spec, Err: err}
	}

	text, derr := r.collect(ctx, d)
	if derr != nil {
		return nil, derr
	}

	match := re.FindStringSubmatch(text)
	if match == nil {
		return nil, &DriverError{Failure: DriverNoMatch, Spec: d.spec}
	}

	values := map[string]string{}
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		values[name] = match[i]
	}
	return values, nil
}

func (r *Registry) collect(ctx context.Context, d Driver) (string, *DriverError) {
	switch d.Kind {
	case DriverCommand:
		out, err := exec.CommandContext(ctx, "/bin/sh", "-c", d.Source).Output()
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				return "", &DriverError{Failure: DriverNotFound, Spec: d.spec, Err: err}
			}
			return "", &DriverError{Failure: DriverExecutionFailed, Spec: d.spec, Err: err}
		}
		return string(out), nil
	case DriverFile:
		contents, err := os.ReadFile(d.Source)
		if err != nil {
			if os.IsNotExist(err) {
				return "", &DriverError{Failure: DriverNotFound, Spec: d.spec, Err: err}
			}
			return "", &DriverError{Failure: DriverExecutionFailed, Spec: d.spec, Err: err}
		}
		return string(contents), nil
	case DriverCustom:
		fn, ok := r.custom[d.Source]
		if !ok {
			return "", &DriverError{Failure: DriverNotFound, Spec: d.spec}
		}
		text, err := fn(ctx, d.Source)
		if err != nil {
			return "", &DriverError{Failure: DriverExecutionFailed, Spec: d.spec, Err: err}
		}
		return text, nil
	default:
		return "", &DriverError{Failure: DriverNotFound, Spec: d.spec}
	}
}
