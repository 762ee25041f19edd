//go:build linux

package fs

import (
	"io/fs"
	"syscall"
	"time"
)

// extractStat pulls inode and the access/change times out of a FileInfo.
// FileInfos that do not carry a *syscall.Stat_t fall back to the mtime.
func extractStat(info fs.FileInfo) statData {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fallbackStat(info)
	}
	return statData{
		ino:   stat.Ino,
		atime: time.Unix(stat.Atim.Sec, stat.Atim.Nsec),
		ctime: time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec),
	}
}
