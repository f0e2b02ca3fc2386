package fsutil

import "fmt"

// AllocateSavePath computes the folder the map will be persisted to.
//
// An empty base means saving is disabled and "" is returned. When overwrite
// is permitted the base itself is returned and the caller accepts clobbering
// whatever is there. Otherwise candidates base, base_0, base_1, ... are
// probed in order and the first one that exists neither as a file nor as a
// directory is returned, so an earlier run's output is never overwritten.
func AllocateSavePath(fsys FileSystem, base string, overwrite bool) string {
	if base == "" {
		return ""
	}
	if overwrite {
		return base
	}

	candidate := base
	for counter := 0; fsys.Exists(candidate); counter++ {
		candidate = fmt.Sprintf("%s_%d", base, counter)
	}
	return candidate
}
