//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vectorindex/internal/vecerr"
)

// ONNXRuntimeVersion is the runtime release matching onnxruntime_go.
const ONNXRuntimeVersion = "1.23.0"

// onnxPathEnv is read by onnxruntime_go to locate the shared library.
const onnxPathEnv = "ONNX_PATH"

const onnxReleaseURL = "https://github.com/microsoft/onnxruntime/releases/download/v%[1]s/onnxruntime-%[2]s-%[1]s.tgz"

// ErrUnsupportedPlatform indicates no runtime build exists for this OS/arch.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// runtimePlatform returns the release archive suffix for goos/goarch.
func runtimePlatform(goos, goarch string) (string, error) {
	switch goos + "/" + goarch {
	case "linux/amd64":
		return "linux-x64", nil
	case "linux/arm64":
		return "linux-aarch64", nil
	case "darwin/amd64":
		return "osx-x86_64", nil
	case "darwin/arm64":
		return "osx-arm64", nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
}

func runtimeLibrary(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

func runtimeDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "vectorindex", "lib")
}

// ONNXLibraryPath returns ONNX_PATH when set, else the managed install if
// present, else "".
func ONNXLibraryPath() string {
	if p := os.Getenv(onnxPathEnv); p != "" {
		return p
	}
	p := filepath.Join(runtimeDir(), runtimeLibrary(runtime.GOOS))
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

// EnsureONNXRuntime downloads the runtime into the user cache when it is
// not already available and points ONNX_PATH at it.
func EnsureONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if p := ONNXLibraryPath(); p != "" {
		return p, nil
	}
	platform, err := runtimePlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", vecerr.Config("embeddings.install_runtime", "%v", err)
	}
	url := fmt.Sprintf(onnxReleaseURL, ONNXRuntimeVersion, platform)
	logger.Info("downloading onnx runtime",
		zap.String("version", ONNXRuntimeVersion),
		zap.String("platform", platform),
	)
	if err := installRuntime(ctx, http.DefaultClient, url, runtimeDir(), ONNXRuntimeVersion, platform); err != nil {
		return "", vecerr.Connection("install onnx runtime", err)
	}
	p := filepath.Join(runtimeDir(), runtimeLibrary(runtime.GOOS))
	if err := os.Setenv(onnxPathEnv, p); err != nil {
		return "", err
	}
	logger.Info("onnx runtime installed", zap.String("path", p))
	return p, nil
}

func installRuntime(ctx context.Context, client *http.Client, url, dir, version, platform string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	return extractRuntime(resp.Body, dir, fmt.Sprintf("onnxruntime-%s-%s/lib/", platform, version), runtimeLibrary(runtime.GOOS))
}

// extractRuntime copies the files under prefix in a .tgz stream into dir,
// keeping symlinks. It fails if lib was not among them.
func extractRuntime(r io.Reader, dir, prefix, lib string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	found := false
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) || hdr.Typeflag == tar.TypeDir {
			continue
		}
		base := filepath.Base(name)
		dest := filepath.Join(dir, base)

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return fmt.Errorf("writing %s: %w", base, err)
			}
		default:
			continue
		}
		if base == lib || strings.HasPrefix(base, lib+".") {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%s not found in archive", lib)
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
