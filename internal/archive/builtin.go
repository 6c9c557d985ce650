package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// writeBuiltin writes the staged entries into out in spec order. Entry names
// are assigned here, so no on-disk renaming is needed.
func writeBuiltin(ctx context.Context, spec Spec, stageDir, out string) (err error) {
	f, err := os.OpenFile(out, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()

	switch spec.Format {
	case FormatZip:
		return writeZip(ctx, f, spec.Entries, stageDir)
	case FormatTarGz:
		return writeTarGz(ctx, f, spec.Entries, stageDir)
	default:
		return fmt.Errorf("unsupported archive format %q", spec.Format)
	}
}

func writeZip(ctx context.Context, w io.Writer, entries []Entry, stageDir string) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(stageDir, e.Name)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat staged %q: %w", e.Name, err)
		}

		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("zip header %q: %w", e.Name, err)
		}
		hdr.Name = e.Name
		hdr.Method = zip.Deflate

		dst, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("zip entry %q: %w", e.Name, err)
		}
		if err := copyFile(dst, path); err != nil {
			return fmt.Errorf("zip entry %q: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	return nil
}

func writeTarGz(ctx context.Context, w io.Writer, entries []Entry, stageDir string) error {
	gz, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("gzip writer: %w", err)
	}
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(stageDir, e.Name)
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat staged %q: %w", e.Name, err)
		}

		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     e.Name,
			Mode:     int64(info.Mode().Perm()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("tar header %q: %w", e.Name, err)
		}
		if err := copyFile(tw, path); err != nil {
			return fmt.Errorf("tar entry %q: %w", e.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("finish gzip: %w", err)
	}
	return nil
}

func copyFile(dst io.Writer, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}
