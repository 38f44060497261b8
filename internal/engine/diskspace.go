package engine

import "syscall"

// freeBytes reports the free space available on the filesystem holding
// path, fed to opgen.Generate's disk-space guard (spec §4.6). No library in
// the dependency pack wraps statfs, and the syscall itself is the entire
// implementation, so this one stays on the standard library.
func freeBytes(path string) (int64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
