package iox

import (
	"io"
	"os"
)

// CopyBufSize is the buffer size used by CopyFileInto, matching the
// stitching step's fixed 64 KiB read buffer.
const CopyBufSize = 64 * 1024

// CopyFileInto copies the full contents of the file at srcPath into dst,
// using a fixed CopyBufSize buffer. It does not close dst. If srcPath does
// not exist, it returns (0, nil): a missing source is a no-op copy, not an
// error, matching the file writer's tolerance for a chunk that was never
// successfully opened.
func CopyFileInto(dst io.Writer, srcPath string) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer DiscardClose(src)

	buf := make([]byte, CopyBufSize)
	return io.CopyBuffer(dst, src, buf)
}
