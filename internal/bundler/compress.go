package bundler

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

type compressor struct {
	suffix string
	writer func(io.Writer) (io.WriteCloser, error)
}

var compressors = map[string]compressor{
	"gzip": {
		suffix: ".gz",
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriterLevel(w, gzip.BestCompression)
		},
	},
	"zstd": {
		suffix: ".zst",
		writer: func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		},
	},
}

var compressible = regexp.MustCompile(`\.(js|css|html|svg|json)$`)

// precompress writes a compressed copy of every compressible file in dir for
// each algorithm and returns the bytes written.
func precompress(dir string, algorithms []string) (int64, error) {
	var total int64

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !compressible.MatchString(path) {
			return nil
		}

		for _, algorithm := range algorithms {
			n, err := compressFile(path, compressors[algorithm])
			if err != nil {
				return fmt.Errorf("failed to %s %s: %w", algorithm, path, err)
			}
			total += n
		}
		return nil
	})

	return total, err
}

func compressFile(path string, c compressor) (int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	target := path + c.suffix
	dst, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	enc, err := c.writer(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create encoder: %w", err)
	}

	if _, err := io.Copy(enc, src); err != nil {
		enc.Close()
		return 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, err
	}

	info, err := dst.Stat()
	if err != nil {
		return 0, err
	}

	log.Debug().Str("file", target).Int64("bytes", info.Size()).Msg("Compressed file")
	return info.Size(), nil
}
