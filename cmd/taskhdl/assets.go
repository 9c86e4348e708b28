package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

var (
	assetDirOnce sync.Once
	assetDir     string
	assetDirErr  error
)

// assetsRoot locates the directory of static primitives: TASKHDL_ASSET_DIR,
// then assets/ next to this source file, then assets/ next to the binary.
func assetsRoot() (string, error) {
	assetDirOnce.Do(func() {
		if env := os.Getenv("TASKHDL_ASSET_DIR"); env != "" {
			assetDir = env
			return
		}
		candidates := []string{
			filepath.Join(repoDirFromSource(), "assets"),
			filepath.Join(executableDir(), "assets"),
		}
		for _, candidate := range candidates {
			if candidate == "" {
				continue
			}
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				assetDir = candidate
				return
			}
		}
		assetDirErr = fmt.Errorf("assets directory not found; set TASKHDL_ASSET_DIR or pass -asset-dir")
	})
	if assetDir != "" {
		return assetDir, nil
	}
	return "", assetDirErr
}

func repoDirFromSource() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	return filepath.Dir(file)
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Dir(exe)
}
