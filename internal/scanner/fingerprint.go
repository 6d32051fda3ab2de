package scanner

import (
	"fmt"
	"os"
	"syscall"

	"github.com/cespare/xxhash/v2"
)

// fingerprint returns a stable identity for path independent of its
// name: device+inode where the platform exposes them, else a hash of
// size plus the first few KB of content.
func fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return fmt.Sprintf("dev%d-ino%d", stat.Dev, stat.Ino), nil
	}

	return fingerprintByHead(path, info.Size())
}

const fingerprintHeadBytes = 4096

func fingerprintByHead(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, fingerprintHeadBytes)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return "", err
	}
	h := xxhash.Sum64(buf[:n])
	return fmt.Sprintf("size%d-head%x", size, h), nil
}
