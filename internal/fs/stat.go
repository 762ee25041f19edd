package fs

import (
	"io/fs"
	"time"
)

type statData struct {
	ino   uint64
	atime time.Time
	ctime time.Time
}

func fallbackStat(info fs.FileInfo) statData {
	return statData{atime: info.ModTime(), ctime: info.ModTime()}
}
