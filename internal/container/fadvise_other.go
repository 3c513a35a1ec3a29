//go:build !linux

package container

import "os"

// adviseRandomAccess is a no-op outside Linux; fadvise has no portable
// equivalent.
func adviseRandomAccess(*os.File) {}
