package mcf

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "geomet-mapfile/internal/common/errors"
)

// DiscoveryDir is the folder the fetched archive is unpacked into.
const DiscoveryDir = "discovery-metadata"

// Downloader is satisfied by the shared HTTP client.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// Fetch downloads a zip archive of MCF files and unpacks it under dest,
// replacing any previous content. The archive's single top-level folder
// (a release tag) is renamed to DiscoveryDir.
func Fetch(ctx context.Context, d Downloader, archiveURL, dest string) (string, error) {
	body, err := d.Download(ctx, archiveURL)
	if err != nil {
		return "", apperrors.NewMetadataFetchFailedError(archiveURL, err)
	}

	if err := os.RemoveAll(dest); err != nil {
		return "", apperrors.NewArtifactWriteFailedError(dest, err)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", apperrors.NewArtifactWriteFailedError(dest, err)
	}

	top, err := extract(body, dest)
	if err != nil {
		return "", apperrors.NewMetadataFetchFailedError(archiveURL, err)
	}

	target := filepath.Join(dest, DiscoveryDir)
	if top == "" || top == DiscoveryDir {
		return target, nil
	}
	if err := os.Rename(filepath.Join(dest, top), target); err != nil {
		return "", apperrors.NewArtifactWriteFailedError(target, err)
	}
	return target, nil
}

// extract unpacks the archive and returns its top-level folder name, or ""
// when the archive has several top-level entries.
func extract(body []byte, dest string) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}

	roots := map[string]bool{}
	cleanDest := filepath.Clean(dest) + string(os.PathSeparator)

	for _, f := range zr.File {
		name := filepath.FromSlash(f.Name)
		path := filepath.Join(dest, name)
		if !strings.HasPrefix(path, cleanDest) {
			return "", fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		roots[strings.SplitN(f.Name, "/", 2)[0]] = true

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := writeEntry(f, path); err != nil {
			return "", err
		}
	}

	if len(roots) != 1 {
		return "", nil
	}
	for root := range roots {
		return root, nil
	}
	return "", nil
}

func writeEntry(f *zip.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
