package export

import (
	"context"
	"fmt"

	"resdex/internal/config"
)

// NewTargetFromConfig creates the export target named by cfg.Type, wrapped
// in age encryption when recipients are configured. An empty type yields
// ErrNoTarget.
func NewTargetFromConfig(ctx context.Context, cfg config.ExportConfig) (Target, error) {
	var (
		target Target
		err    error
	)
	switch cfg.Type {
	case "":
		return nil, ErrNoTarget
	case "dir":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("dir export requires dir to be set")
		}
		target, err = NewDirTarget(cfg.Dir)
	case "s3":
		target, err = NewS3Target(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown export type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if len(cfg.AgeRecipients) > 0 {
		return NewEncryptedTarget(target, cfg.AgeRecipients)
	}
	return target, nil
}
