package facts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDriver(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    Driver
		wantErr bool
	}{
		{
			name: "command",
			spec: "command:hostname -f",
			want: Driver{Kind: DriverCommand, Source: "hostname -f", spec: "command:hostname -f"},
		},
		{
			name: "file",
			spec: "file:/etc/datacenter",
			want: Driver{Kind: DriverFile, Source: "/etc/datacenter", spec: "file:/etc/datacenter"},
		},
		{
			name: "custom",
			spec: "custom:rack-from-hostname",
			want: Driver{Kind: DriverCustom, Source: "rack-from-hostname", spec: "custom:rack-from-hostname"},
		},
		{
			name:    "unknown kind",
			spec:    "http:/etc/datacenter",
			wantErr: true,
		},
		{
			name:    "missing separator",
			spec:    "hostname",
			wantErr: true,
		},
		{
			name:    "empty source",
			spec:    "command:",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDriver(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractCommand(t *testing.T) {
	r := NewRegistry()
	d, err := ParseDriver(`command:echo "datacenter: dc1"`)
	require.NoError(t, err)

	values, err := r.Extract(context.TODO(), d, `datacenter: (?P<datacenter>[A-Za-z0-9]+)`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"datacenter": "dc1"}, values)
}

func TestExtractInvalidRegex(t *testing.T) {
	r := NewRegistry()
	d, err := ParseDriver(`command:echo "datacenter: dc1"`)
	require.NoError(t, err)

	// the pattern never ran against any text, so this is not a NoMatch
	_, err = r.Extract(context.TODO(), d, `datacenter: (?P<datacenter>[`)
	var derr *DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, DriverExecutionFailed, derr.Failure)
}

func TestExtractCommandNoMatch(t *testing.T) {
	r := NewRegistry()
	d, err := ParseDriver(`command:echo "rack: r12"`)
	require.NoError(t, err)

	_, err = r.Extract(context.TODO(), d, `datacenter: (?P<datacenter>[A-Za-z0-9]+)`)
	var derr *DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, DriverNoMatch, derr.Failure)
}

func TestExtractCommandFails(t *testing.T) {
	r := NewRegistry()
	d, err := ParseDriver("command:exit 3")
	require.NoError(t, err)

	_, err = r.Extract(context.TODO(), d, `(?P<x>.+)`)
	var derr *DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, DriverExecutionFailed, derr.Failure)
}

func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "location")
	require.NoError(t, os.WriteFile(path, []byte("site=ams1 rack=a07\n"), 0o600))

	r := NewRegistry()
	d, err := ParseDriver("file:" + path)
	require.NoError(t, err)

	values, err := r.Extract(context.TODO(), d, `site=(?P<site>\S+) rack=(?P<rack>\S+)`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"site": "ams1", "rack": "a07"}, values)
}

func TestExtractFileNotFound(t *testing.T) {
	r := NewRegistry()
	d, err := ParseDriver("file:" + filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)

	_, err = r.Extract(context.TODO(), d, `(?P<x>.+)`)
	var derr *DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, DriverNotFound, derr.Failure)
}

func TestExtractCustom(t *testing.T) {
	r := NewRegistry()
	r.RegisterCustom("fixed", func(_ context.Context, _ string) (string, error) {
		return "row=3", nil
	})

	d, err := ParseDriver("custom:fixed")
	require.NoError(t, err)
	values, err := r.Extract(context.TODO(), d, `row=(?P<row>\d+)`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"row": "3"}, values)
}

func TestExtractCustomUnregistered(t *testing.T) {
	r := NewRegistry()
	d, err := ParseDriver("custom:nope")
	require.NoError(t, err)

	_, err = r.Extract(context.TODO(), d, `(?P<x>.+)`)
	var derr *DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, DriverNotFound, derr.Failure)
}

func TestExtractCustomFailure(t *testing.T) {
	r := NewRegistry()
	r.RegisterCustom("broken", func(_ context.Context, _ string) (string, error) {
		return "", errors.New("ipmi timeout")
	})

	d, err := ParseDriver("custom:broken")
	require.NoError(t, err)
	_, err = r.Extract(context.TODO(), d, `(?P<x>.+)`)
	var derr *DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, DriverExecutionFailed, derr.Failure)
}

func TestResolveLocation(t *testing.T) {
	r := NewRegistry()
	r.RegisterCustom("placement", func(_ context.Context, _ string) (string, error) {
		return "dc1/r12/u40", nil
	})

	resolved, err := r.ResolveLocation(context.TODO(), map[string]FieldSpec{
		"placement": {
			Driver:   "custom:placement",
			Regex:    `(?P<site>[^/]+)/(?P<rack>[^/]+)/u(?P<unit>\d+)`,
			Required: true,
		},
		"optional-broken": {
			Driver: "file:/nonexistent/location",
			Regex:  `(?P<row>\d+)`,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"site": "dc1", "rack": "r12", "unit": "40"}, resolved)
}

func TestResolveLocationRequiredFailure(t *testing.T) {
	r := NewRegistry()

	_, err := r.ResolveLocation(context.TODO(), map[string]FieldSpec{
		"site": {
			Driver:   "file:/nonexistent/location",
			Regex:    `(?P<site>\S+)`,
			Required: true,
		},
	})
	var derr *DriverError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, DriverNotFound, derr.Failure)
}

func TestResolveLocationFirstKeyWins(t *testing.T) {
	r := NewRegistry()
	r.RegisterCustom("a", func(_ context.Context, _ string) (string, error) { return "site=one", nil })

	resolved, err := r.ResolveLocation(context.TODO(), map[string]FieldSpec{
		"only": {Driver: "custom:a", Regex: `site=(?P<site>\w+)`},
	})
	require.NoError(t, err)
	assert.Equal(t, "one", resolved["site"])
}
