package engine

import (
	"context"
	"fmt"

	"resdex/internal/export"
	"resdex/internal/resource"
)

// CommandKind selects the operation a Command runs.
type CommandKind int

const (
	CmdGetResources CommandKind = iota + 1
	CmdGetResourcesByKeyword
	CmdGetResourcesByHashes
	CmdGetResourceByHash
	CmdGetResourceByInode
	CmdGetResourcesByURI
	CmdGetResourcesByURIPrefix
	CmdResolveResources
	CmdImportResources
	CmdUpdateResources
	CmdRemoveResources
	CmdExportResources
	CmdSweepOrphans
	CmdTouch
	CmdInstall
)

var commandNames = map[CommandKind]string{
	CmdGetResources:            "getResources",
	CmdGetResourcesByKeyword:   "getResourcesByKeyword",
	CmdGetResourcesByHashes:    "getResourcesByHashes",
	CmdGetResourceByHash:       "getResourceByHash",
	CmdGetResourceByInode:      "getResourceByInode",
	CmdGetResourcesByURI:       "getResourcesByUri",
	CmdGetResourcesByURIPrefix: "getResourcesByUriPrefix",
	CmdResolveResources:        "resolveResources",
	CmdImportResources:         "importResources",
	CmdUpdateResources:         "updateResources",
	CmdRemoveResources:         "removeResources",
	CmdExportResources:         "exportResources",
	CmdSweepOrphans:            "sweepOrphans",
	CmdTouch:                   "touch",
	CmdInstall:                 "install",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command is a request to the engine. Only the fields the kind reads are
// consulted.
type Command struct {
	Kind CommandKind

	Domain       resource.Domain
	Page         resource.Page
	Keyword      string
	Hashes       []string
	URIs         []string
	Prefix       string
	Ino          uint64
	Paths        []string
	Imports      []ImportOptions
	Updates      []resource.Update
	Target       export.Target
	InstancePath string
}

// Result carries whatever the command produced.
type Result struct {
	Resources []*resource.Resource
	Names     []string
	Count     int64
	OK        bool
}

type commandHandler func(e *Engine, ctx context.Context, cmd Command) (Result, error)

var commandHandlers = map[CommandKind]commandHandler{
	CmdGetResources: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		rs, err := e.GetResources(ctx, cmd.Domain, cmd.Page)
		return Result{Resources: rs}, err
	},
	CmdGetResourcesByKeyword: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		rs, err := e.GetResourcesByKeyword(ctx, cmd.Domain, cmd.Keyword, cmd.Page)
		return Result{Resources: rs}, err
	},
	CmdGetResourcesByHashes: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		rs, err := e.GetResourcesByHashes(ctx, cmd.Hashes)
		return Result{Resources: rs}, err
	},
	CmdGetResourceByHash: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		if len(cmd.Hashes) != 1 {
			return Result{}, fmt.Errorf("%s needs exactly one hash", cmd.Kind)
		}
		r, err := e.GetResourceByHash(ctx, cmd.Hashes[0])
		return single(r), err
	},
	CmdGetResourceByInode: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		r, err := e.GetResourceByInode(ctx, cmd.Ino)
		return single(r), err
	},
	CmdGetResourcesByURI: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		rs, err := e.GetResourcesByURI(ctx, cmd.URIs...)
		return Result{Resources: rs}, err
	},
	CmdGetResourcesByURIPrefix: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		rs, err := e.GetResourcesByURIPrefix(ctx, cmd.Prefix)
		return Result{Resources: rs}, err
	},
	CmdResolveResources: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		opts := make([]ResolveOptions, len(cmd.Paths))
		for i, p := range cmd.Paths {
			opts[i] = ResolveOptions{Path: p, Domain: cmd.Domain}
		}
		rs, err := e.ResolveResources(ctx, opts)
		return Result{Resources: rs}, err
	},
	CmdImportResources: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		rs, err := e.ImportResources(ctx, cmd.Imports)
		return Result{Resources: rs}, err
	},
	CmdUpdateResources: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		err := e.UpdateResources(ctx, cmd.Updates)
		return Result{OK: err == nil, Count: int64(len(cmd.Updates))}, err
	},
	CmdRemoveResources: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		err := e.RemoveResources(ctx, cmd.Hashes)
		return Result{OK: err == nil}, err
	},
	CmdExportResources: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		names, err := e.ExportResources(ctx, cmd.Hashes, cmd.Target)
		return Result{Names: names, Count: int64(len(names))}, err
	},
	CmdSweepOrphans: func(e *Engine, ctx context.Context, _ Command) (Result, error) {
		n, err := e.SweepOrphans(ctx)
		return Result{Count: n}, err
	},
	CmdTouch: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		if len(cmd.Paths) != 1 {
			return Result{}, fmt.Errorf("%s needs exactly one path", cmd.Kind)
		}
		ok, err := e.Touch(ctx, cmd.Paths[0])
		return Result{OK: ok}, err
	},
	CmdInstall: func(e *Engine, ctx context.Context, cmd Command) (Result, error) {
		if len(cmd.Hashes) != 1 {
			return Result{}, fmt.Errorf("%s needs exactly one hash", cmd.Kind)
		}
		err := e.Install(ctx, cmd.Hashes[0], cmd.InstancePath)
		return Result{OK: err == nil}, err
	},
}

func single(r *resource.Resource) Result {
	if r == nil {
		return Result{}
	}
	return Result{Resources: []*resource.Resource{r}}
}

// Dispatch runs cmd through the fixed handler table.
func (e *Engine) Dispatch(ctx context.Context, cmd Command) (Result, error) {
	h, ok := commandHandlers[cmd.Kind]
	if !ok {
		return Result{}, fmt.Errorf("unknown command %s", cmd.Kind)
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return Result{}, ErrClosed
	}
	return h(e, ctx, cmd)
}
