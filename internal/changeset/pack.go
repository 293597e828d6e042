package changeset

import (
	"archive/tar"
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

const ioBufferSize = 256 * 1024

// Options controls Pack.
type Options struct {
	Format Format // derived from the archive name when empty
	Level  Level
}

// PackResult summarizes a written archive.
type PackResult struct {
	Path  string
	Files int   // regular files
	Bytes int64 // archive size on disk
}

// Pack writes every directory and regular file under root into a compressed
// tar at archivePath, named relative to root with forward slashes, in
// lexical walk order. The archive is built in a temporary file beside
// archivePath and renamed into place only when complete.
func Pack(ctx context.Context, root, archivePath string, opts Options) (result PackResult, retErr error) {
	format := opts.Format
	if format == "" {
		var err error
		if format, err = ParseFormat(archivePath); err != nil {
			return result, err
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return result, err
	}
	absArchive, err := filepath.Abs(archivePath)
	if err != nil {
		return result, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(absArchive), ".treedelta-archive-*.tmp")
	if err != nil {
		return result, fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	files, err := writeArchive(ctx, tmp, absRoot, absArchive, tmpPath, format, opts.Level)
	if err != nil {
		return result, err
	}

	info, err := tmp.Stat()
	if err != nil {
		return result, fmt.Errorf("stat temp archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return result, fmt.Errorf("close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, absArchive); err != nil {
		return result, fmt.Errorf("rename temp archive: %w", err)
	}

	slog.Debug("changeset archived", "path", absArchive, "format", format, "files", files, "bytes", info.Size())
	return PackResult{Path: absArchive, Files: files, Bytes: info.Size()}, nil
}

func newCompressor(w io.Writer, format Format, level Level) (io.WriteCloser, error) {
	switch format {
	case TarZst:
		var encoderLevel zstd.EncoderLevel
		switch level {
		case Fastest:
			encoderLevel = zstd.SpeedFastest
		case Better:
			encoderLevel = zstd.SpeedBetterCompression
		case Best:
			encoderLevel = zstd.SpeedBestCompression
		default:
			encoderLevel = zstd.SpeedDefault
		}
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(encoderLevel))
		if err != nil {
			return nil, fmt.Errorf("create zstd writer: %w", err)
		}
		return zw, nil
	case TarGz:
		var lvl int
		switch level {
		case Fastest:
			lvl = pgzip.BestSpeed
		case Better:
			lvl = 6
		case Best:
			lvl = pgzip.BestCompression
		default:
			lvl = pgzip.DefaultCompression
		}
		gw, err := pgzip.NewWriterLevel(w, lvl)
		if err != nil {
			return nil, fmt.Errorf("create gzip writer: %w", err)
		}
		return gw, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %s", format)
	}
}

func writeArchive(
	ctx context.Context,
	dst *os.File,
	root, archivePath, tmpPath string,
	format Format,
	level Level,
) (files int, retErr error) {
	bw := bufio.NewWriterSize(dst, ioBufferSize)
	cw, err := newCompressor(bw, format, level)
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(cw)

	defer func() {
		if err := tw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("tar writer close: %w", err)
		}
		if err := cw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressed writer close: %w", err)
		}
		if err := bw.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush: %w", err)
		}
	}()

	buf := make([]byte, ioBufferSize)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root || path == archivePath || path == tmpPath {
			return nil
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("tar header for %s: %w", rel, err)
		}
		header.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			header.Name += "/"
			return tw.WriteHeader(header)
		}

		if err := writeFile(tw, header, path, buf); err != nil {
			return fmt.Errorf("add %s: %w", rel, err)
		}
		files++
		return nil
	})
	return files, err
}

func writeFile(tw *tar.Writer, header *tar.Header, path string, buf []byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	// The header size is from the walk; a file that changed since then would
	// corrupt the stream, so copy exactly that many bytes.
	n, err := io.CopyBuffer(tw, io.LimitReader(f, header.Size), buf)
	if err != nil {
		return err
	}
	if n != header.Size {
		return fmt.Errorf("file shrank from %d to %d bytes while archiving", header.Size, n)
	}
	return nil
}
