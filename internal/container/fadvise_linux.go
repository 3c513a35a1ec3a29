//go:build linux

package container

import (
	"os"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// adviseRandomAccess hints to the kernel that reads against the archive
// file will be randomly distributed (binary search over the entry
// index), following the same fadvise(FADV_RANDOM) warmup trick
// compactindexsized uses when opening a file-backed index.
func adviseRandomAccess(f *os.File) {
	if err := unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM); err != nil {
		klog.V(2).Infof("container: fadvise(RANDOM) failed: %v", err)
	}
}
