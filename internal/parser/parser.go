// Package parser extracts launcher metadata from mod jars, resource packs,
// shader packs, saves and modpacks. Archives and directories are read through
// the same fs.FS view.
package parser

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"resdex/internal/resource"
)

// ErrUnrecognized is returned when no descriptor for the domain was found.
var ErrUnrecognized = errors.New("no recognizable descriptor")

// maxDescriptorSize caps how much of a single descriptor or icon is read.
const maxDescriptorSize = 4 << 20

// detector inspects fsys and fills result. It reports whether it found
// anything it understands.
type detector func(fsys fs.FS, result *resource.ParseResult) (bool, error)

// Default is the built-in resource.Parser.
type Default struct {
	logger    resource.Logger
	detectors map[resource.Domain][]detector
}

func New(logger resource.Logger) *Default {
	if logger == nil {
		logger = resource.NewNopLogger()
	}
	mods := []detector{detectFabric, detectQuilt, detectForge, detectNeoforge, detectLegacyForge, detectLiteloader}
	packs := []detector{detectResourcePack}
	shaders := []detector{detectShaderPack}
	saves := []detector{detectSave}
	modpacks := []detector{detectModrinthModpack, detectCurseforgeModpack, detectMcbbsModpack, detectMMCModpack, detectModpack}

	var all []detector
	for _, group := range [][]detector{mods, modpacks, packs, shaders, saves} {
		all = append(all, group...)
	}
	return &Default{
		logger: logger,
		detectors: map[resource.Domain][]detector{
			resource.DomainMods:          mods,
			resource.DomainResourcePacks: packs,
			resource.DomainShaderPacks:   shaders,
			resource.DomainSaves:         saves,
			resource.DomainModpacks:      modpacks,
			resource.DomainUnclassified:  all,
		},
	}
}

// Parse runs every detector registered for domain. Detectors that fail are
// logged and skipped; ErrUnrecognized is returned only when none matched.
func (p *Default) Parse(ctx context.Context, filePath string, kind resource.FileKind, domain resource.Domain) (*resource.ParseResult, error) {
	fsys, closer, err := open(filePath, kind)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	detectors, ok := p.detectors[domain]
	if !ok {
		detectors = p.detectors[resource.DomainUnclassified]
	}

	result := &resource.ParseResult{}
	matched := false
	for _, detect := range detectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := detect(fsys, result)
		if err != nil {
			p.logger.Debug("descriptor detector failed", "path", filePath, "error", err)
			continue
		}
		matched = matched || found
	}
	if !matched {
		return nil, fmt.Errorf("parsing %s: %w", filePath, ErrUnrecognized)
	}
	return result, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func open(filePath string, kind resource.FileKind) (fs.FS, io.Closer, error) {
	switch kind {
	case resource.KindDirectory:
		return os.DirFS(filePath), nopCloser{}, nil
	case resource.KindZip:
		zr, err := zip.OpenReader(filePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening archive: %w", err)
		}
		return zr, zr, nil
	default:
		return nil, nil, fmt.Errorf("parsing %s: %w", filePath, ErrUnrecognized)
	}
}

// readFile reads name from fsys, refusing oversized entries.
func readFile(fsys fs.FS, name string) ([]byte, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxDescriptorSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxDescriptorSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, maxDescriptorSize)
	}
	return data, nil
}

// exists reports whether name is present, tolerating any lookup error.
func exists(fsys fs.FS, name string) bool {
	_, err := fs.Stat(fsys, name)
	return err == nil
}

// addIcon appends the icon at name when it can be read.
func addIcon(fsys fs.FS, name string, result *resource.ParseResult) {
	if name == "" {
		return
	}
	name = path.Clean(path.Join(".", name))
	data, err := readFile(fsys, name)
	if err != nil || len(data) == 0 {
		return
	}
	result.Icons = append(result.Icons, data)
}

func setName(result *resource.ParseResult, name string) {
	if result.Name == "" && name != "" {
		result.Name = name
		result.Metadata.Name = name
	}
}

var _ resource.Parser = (*Default)(nil)
