package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// ValidateOutputPath ensures the destination path is valid for file creation.
// An existing file is acceptable and will be overwritten.
func ValidateOutputPath(dstPath string) error {
	if info, err := os.Stat(dstPath); err == nil {
		if info.IsDir() {
			return fmt.Errorf("destination path '%s' is a directory, please specify a file path", dstPath)
		}
		return nil
	}

	// If path doesn't exist, the parent directory must
	dir := filepath.Dir(dstPath)
	if dir != "." && dir != "/" {
		if info, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("parent directory '%s' does not exist", dir)
			}
			return fmt.Errorf("cannot access parent directory '%s': %v", dir, err)
		} else if !info.IsDir() {
			return fmt.Errorf("parent path '%s' is not a directory", dir)
		}
	}

	filename := filepath.Base(dstPath)
	if filename == "." || filename == ".." {
		return fmt.Errorf("destination path '%s' does not specify a filename", dstPath)
	}
	return nil
}

// ValidateInputPath ensures the source path names a readable regular file.
func ValidateInputPath(srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", srcPath)
		}
		return fmt.Errorf("cannot access '%s': %v", srcPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("'%s' is a directory", srcPath)
	}
	return nil
}
