// Package store persists run results: pretty JSON files on disk and an
// optional Postgres archive of parsed records.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/singsub/internal/model"
)

type StoreError struct {
	AppError model.AppError
	Cause    error
}

func (e *StoreError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

func storeError(code, target, msg string, cause error) error {
	return &StoreError{
		AppError: model.AppError{
			Code:    code,
			Message: msg,
			Stage:   "persist",
			URL:     target,
		},
		Cause: cause,
	}
}

// EncodeJSON renders v with two-space indentation, literal non-ASCII text
// and no HTML escaping.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteJSON replaces path atomically: the document is written to a
// temporary file in the same directory and renamed over the target.
func WriteJSON(path string, v any) error {
	b, err := EncodeJSON(v)
	if err != nil {
		return storeError("PERSIST_ENCODE_ERROR", path, "JSON 编码失败", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return storeError("PERSIST_WRITE_ERROR", path, "创建临时文件失败", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return storeError("PERSIST_WRITE_ERROR", path, "写入临时文件失败", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return storeError("PERSIST_WRITE_ERROR", path, "同步临时文件失败", err)
	}
	if err := tmp.Close(); err != nil {
		return storeError("PERSIST_WRITE_ERROR", path, "关闭临时文件失败", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return storeError("PERSIST_WRITE_ERROR", path, "设置文件权限失败", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return storeError("PERSIST_WRITE_ERROR", path, "替换目标文件失败", err)
	}
	return nil
}
