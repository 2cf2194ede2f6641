// Package reporter displays benchmark records and moves them between
// files, databases, object storage and the records service.
//
// Destinations are addressed by URI. A bare path or file:// URI selects a
// file format by extension (see RegisterFileIO); any other protocol selects
// a registered ServiceIO (see RegisterServiceIO).
package reporter

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/mlbench/mlbench/record"
)

// ServiceIO reads and writes records at a remote or database location.
type ServiceIO interface {
	Read(ctx context.Context, uri string) ([]*record.Record, error)
	Write(ctx context.Context, rec *record.Record, uri string) error
}

var (
	servicesMu sync.RWMutex
	services   = map[string]ServiceIO{}
)

// RegisterServiceIO makes io available for URIs with the given protocol.
// Replacing an existing registration requires clobber.
func RegisterServiceIO(protocol string, io ServiceIO, clobber bool) error {
	servicesMu.Lock()
	defer servicesMu.Unlock()
	if _, ok := services[protocol]; ok && !clobber {
		return fmt.Errorf("IO %q is already registered (register with clobber to replace it)", protocol)
	}
	services[protocol] = io
	return nil
}

// Protocols returns the registered service protocols in sorted order.
func Protocols() []string {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	return slices.Sorted(maps.Keys(services))
}

func serviceIO(protocol string) (ServiceIO, error) {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	io, ok := services[protocol]
	if !ok {
		return nil, fmt.Errorf("unsupported benchmark IO: %q", protocol)
	}
	return io, nil
}

// Protocol returns the scheme of uri, or "file" for plain paths.
func Protocol(uri string) string {
	i := strings.Index(uri, "://")
	j := strings.Index(uri, "::")
	switch {
	case i < 0 && j < 0:
		return "file"
	case i < 0 || (j >= 0 && j < i):
		return uri[:j]
	default:
		return uri[:i]
	}
}

// stripProtocol removes the scheme prefix of uri.
func stripProtocol(uri, protocol string) string {
	for _, sep := range []string{"://", "::"} {
		if rest, ok := strings.CutPrefix(uri, protocol+sep); ok {
			return rest
		}
	}
	return uri
}

// splitRun separates a trailing "#run" selector from uri.
func splitRun(uri string) (string, string) {
	base, run, _ := strings.Cut(uri, "#")
	return base, run
}

// Write stores rec at uri. Files are appended to.
func Write(ctx context.Context, rec *record.Record, uri string) error {
	proto := Protocol(uri)
	if proto == "file" {
		return WriteFile(stripProtocol(uri, proto), rec)
	}
	io, err := serviceIO(proto)
	if err != nil {
		return err
	}
	return io.Write(ctx, rec, uri)
}

// Read loads all records stored at uri.
func Read(ctx context.Context, uri string) ([]*record.Record, error) {
	proto := Protocol(uri)
	if proto == "file" {
		return ReadFile(stripProtocol(uri, proto))
	}
	io, err := serviceIO(proto)
	if err != nil {
		return nil, err
	}
	return io.Read(ctx, uri)
}

func init() {
	pg := &PostgresIO{}
	for proto, io := range map[string]ServiceIO{
		"sqlite":         &SQLiteIO{},
		"postgres":       pg,
		"postgresql":     pg,
		"secretsmanager": pg,
		"s3":             &S3IO{},
		"http":           HTTPIO{},
		"https":          HTTPIO{},
	} {
		RegisterServiceIO(proto, io, true)
	}
}
