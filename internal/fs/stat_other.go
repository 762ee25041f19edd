//go:build !linux

package fs

import "io/fs"

func extractStat(info fs.FileInfo) statData {
	return fallbackStat(info)
}
