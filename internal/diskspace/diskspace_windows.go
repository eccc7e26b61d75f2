//go:build windows

package diskspace

import (
	"os"

	"golang.org/x/sys/windows"
)

func availableBytes(dir string) (int64, bool) {
	ptr, err := windows.UTF16PtrFromString(dir)
	if err != nil {
		return 0, false
	}
	var freeAvailable, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeAvailable, &total, &totalFree); err != nil {
		return 0, false
	}
	return int64(freeAvailable), true
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
