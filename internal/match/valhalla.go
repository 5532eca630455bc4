package match

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/CVTS/cvts/internal/monitoring"
	"github.com/CVTS/cvts/internal/trace"
)

// DefaultValhallaBinary is the matching service executable looked up on
// PATH when none is configured.
const DefaultValhallaBinary = "valhalla_service"

// traceRequest is the request body for a trace_attributes call.
type traceRequest struct {
	Shape      []trace.LocatedSample `json:"shape"`
	Costing    string                `json:"costing"`
	ShapeMatch string                `json:"shape_match"`
}

// ValhallaOracle invokes the Valhalla matching service one-shot, as
// `valhalla_service <config> trace_attributes <request-file>`, and
// parses the JSON it writes to stdout. There is no timeout on an
// individual invocation; a hung service occupies one worker slot until
// it returns.
type ValhallaOracle struct {
	ConfigPath string // Valhalla service configuration, passed through verbatim
	Binary     string // defaults to DefaultValhallaBinary
	TmpDir     string // defaults to the system temp dir
}

// Match implements Oracle.
func (v *ValhallaOracle) Match(ctx context.Context, rego string, tripIndex int, trip trace.Trip) (*Response, error) {
	body, err := json.Marshal(traceRequest{
		Shape:      trip.Samples,
		Costing:    "auto",
		ShapeMatch: "map_snap",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding trip: %w", err)
	}

	dir := v.TmpDir
	if dir == "" {
		dir = os.TempDir()
	}
	in, err := os.CreateTemp(dir, fmt.Sprintf("%s_%d_in_*.json", rego, tripIndex))
	if err != nil {
		return nil, fmt.Errorf("creating request file: %w", err)
	}
	// Cleanup failures are logged, never returned: they must not mask
	// whatever went wrong with the match itself.
	defer func() {
		if rmErr := os.Remove(in.Name()); rmErr != nil {
			monitoring.Logf("match: could not remove %s: %v", in.Name(), rmErr)
		}
	}()

	if _, err := in.Write(body); err != nil {
		in.Close()
		return nil, fmt.Errorf("writing request file: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("closing request file: %w", err)
	}

	binary := v.Binary
	if binary == "" {
		binary = DefaultValhallaBinary
	}
	cmd := exec.CommandContext(ctx, binary, v.ConfigPath, "trace_attributes", in.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w (stderr: %s)", binary, err, firstLine(stderr.Bytes()))
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("parsing %s output: %w", binary, err)
	}
	return &resp, nil
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}
	return b
}
