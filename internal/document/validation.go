package document

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Artifacts are a single zip archive per submission.
const ArchiveContentType = "application/zip"

var (
	ErrInvalidFilename = errors.New("invalid filename")
	ErrInvalidFileType = errors.New("only .zip archives are accepted")
	ErrPathTraversal   = errors.New("path traversal detected")
	ErrEmptyContent    = errors.New("file content required")
	ErrFileTooLarge    = errors.New("file too large")
	ErrNotAnArchive    = errors.New("file content is not a zip archive")
)

var zipSignatures = [][]byte{
	[]byte("PK\x03\x04"),
	[]byte("PK\x05\x06"), // empty archive
}

// ValidateFilename проверяет имя файла на безопасность
func ValidateFilename(filename string) error {
	if filename == "" || len(filename) > 255 || !utf8.ValidString(filename) {
		return ErrInvalidFilename
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return ErrPathTraversal
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".zip" {
		return ErrInvalidFileType
	}
	if strings.TrimSuffix(filename, filepath.Ext(filename)) == "" {
		return ErrInvalidFilename
	}
	return nil
}

// ValidateArchive checks the name, size and magic bytes of an upload.
func ValidateArchive(filename string, data []byte, maxSize int64) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyContent
	}
	if maxSize > 0 && int64(len(data)) > maxSize {
		return ErrFileTooLarge
	}
	for _, sig := range zipSignatures {
		if bytes.HasPrefix(data, sig) {
			return nil
		}
	}
	return ErrNotAnArchive
}

// SanitizeFilename очищает имя файла от опасных символов
func SanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	filename = strings.ReplaceAll(filename, "..", "")

	var builder strings.Builder
	for _, r := range filename {
		if r >= 32 && r != 127 {
			builder.WriteRune(r)
		}
	}
	return strings.TrimSpace(builder.String())
}

// EscapeFilename экранирует имя файла для использования в HTTP заголовках
func EscapeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, `\`, `\\`)
	return strings.ReplaceAll(filename, `"`, `\"`)
}
