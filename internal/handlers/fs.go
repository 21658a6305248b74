package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/overlay/internal/bridge"
	"github.com/spf13/afero"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Entry is one item of a /fs/list result.
type Entry struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Parent string `json:"parent"`
	Path   string `json:"path"`
}

type pathBody struct {
	Path      *string `json:"path"`
	Recursive bool    `json:"recursive"`
	Encoding  string  `json:"encoding"`
}

type writeBody struct {
	Path     *string `json:"path"`
	Contents *string `json:"contents"`
	Encoding string  `json:"encoding"`
}

type writeBase64Body struct {
	Path       *string `json:"path"`
	Base64Data *string `json:"base64Data"`
}

type appendBody struct {
	Path    *string `json:"path"`
	Content *string `json:"content"`
}

type transferBody struct {
	Source      *string `json:"source"`
	Destination *string `json:"destination"`
	Overwrite   bool    `json:"overwrite"`
}

func registerFS(r *bridge.Router, h *host) {
	r.Handle("/fs/file/write", h.writeFile)
	r.Handle("/fs/file/write-base64", h.writeFileBase64)
	r.Handle("/fs/file/append", h.appendFile)
	r.Handle("/fs/file/read", h.readFile)
	r.Handle("/fs/file/read/binary", h.readFileBinary)
	r.Handle("/fs/file/size", h.fileSize)
	r.Handle("/fs/list", h.list)
	r.Handle("/fs/folder/create", h.createFolder)
	r.Handle("/fs/copy", h.copy)
	r.Handle("/fs/move", h.move)
	r.Handle("/fs/delete", h.delete)
	r.Handle("/fs/exist", h.exist)
}

// bindPath decodes a body whose only required field is path.
func bindPath(req *bridge.Request) (pathBody, string, error) {
	b, err := bind[pathBody](req)
	if err != nil {
		return b, "", err
	}
	p, err := required("path", b.Path)
	return b, p, err
}

// encode converts text to bytes according to encoding.
func encode(text, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
		return []byte(text), nil
	case "base64":
		return base64.StdEncoding.DecodeString(text)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// decode converts bytes to text according to encoding.
func decode(data []byte, encoding string) (string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf8", "utf-8":
		return string(data), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", encoding)
	}
}

func (h *host) writeWithParents(path string, data []byte) error {
	if err := h.deps.FS.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	return afero.WriteFile(h.deps.FS, path, data, filePerm)
}

func (h *host) writeFile(_ context.Context, req *bridge.Request) (any, error) {
	b, err := bind[writeBody](req)
	if err != nil {
		return nil, err
	}
	path, err := required("path", b.Path)
	if err != nil {
		return nil, err
	}
	contents, err := required("contents", b.Contents)
	if err != nil {
		return nil, err
	}
	data, err := encode(contents, b.Encoding)
	if err != nil {
		return nil, err
	}
	return nil, h.writeWithParents(path, data)
}

func (h *host) writeFileBase64(_ context.Context, req *bridge.Request) (any, error) {
	b, err := bind[writeBase64Body](req)
	if err != nil {
		return nil, err
	}
	path, err := required("path", b.Path)
	if err != nil {
		return nil, err
	}
	encoded, err := required("base64Data", b.Base64Data)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode base64Data: %w", err)
	}
	return nil, h.writeWithParents(path, data)
}

func (h *host) appendFile(_ context.Context, req *bridge.Request) (any, error) {
	b, err := bind[appendBody](req)
	if err != nil {
		return nil, err
	}
	path, err := required("path", b.Path)
	if err != nil {
		return nil, err
	}
	content, err := required("content", b.Content)
	if err != nil {
		return nil, err
	}
	f, err := h.deps.FS.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		return nil, err
	}
	return nil, f.Close()
}

func (h *host) readFile(_ context.Context, req *bridge.Request) (any, error) {
	b, path, err := bindPath(req)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(h.deps.FS, path)
	if err != nil {
		return nil, err
	}
	content, err := decode(data, b.Encoding)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": content}, nil
}

func (h *host) readFileBinary(_ context.Context, req *bridge.Request) (any, error) {
	_, path, err := bindPath(req)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(h.deps.FS, path)
	if err != nil {
		return nil, err
	}
	// A []byte would encode as base64; the caller expects numbers.
	content := make([]int, len(data))
	for i, b := range data {
		content[i] = int(b)
	}
	return map[string]any{"content": content}, nil
}

func (h *host) fileSize(_ context.Context, req *bridge.Request) (any, error) {
	_, path, err := bindPath(req)
	if err != nil {
		return nil, err
	}
	fi, err := h.deps.FS.Stat(path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"size": fi.Size()}, nil
}

func entryFor(path string, fi os.FileInfo) Entry {
	typ := "file"
	if fi.IsDir() {
		typ = "folder"
	}
	return Entry{
		Type:   typ,
		Name:   fi.Name(),
		Parent: filepath.Dir(path),
		Path:   path,
	}
}

func (h *host) list(_ context.Context, req *bridge.Request) (any, error) {
	b, root, err := bindPath(req)
	if err != nil {
		return nil, err
	}

	entries := []Entry{}
	if !b.Recursive {
		infos, err := afero.ReadDir(h.deps.FS, root)
		if err != nil {
			return nil, err
		}
		for _, fi := range infos {
			entries = append(entries, entryFor(filepath.Join(root, fi.Name()), fi))
		}
		return map[string]any{"list": entries}, nil
	}

	err = afero.Walk(h.deps.FS, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		entries = append(entries, entryFor(path, fi))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"list": entries}, nil
}

func (h *host) createFolder(_ context.Context, req *bridge.Request) (any, error) {
	b, path, err := bindPath(req)
	if err != nil {
		return nil, err
	}
	if b.Recursive {
		return nil, h.deps.FS.MkdirAll(path, dirPerm)
	}
	return nil, h.deps.FS.Mkdir(path, dirPerm)
}

func bindTransfer(req *bridge.Request) (transferBody, string, string, error) {
	b, err := bind[transferBody](req)
	if err != nil {
		return b, "", "", err
	}
	src, err := required("source", b.Source)
	if err != nil {
		return b, "", "", err
	}
	dst, err := required("destination", b.Destination)
	return b, src, dst, err
}

func (h *host) copy(_ context.Context, req *bridge.Request) (any, error) {
	b, src, dst, err := bindTransfer(req)
	if err != nil {
		return nil, err
	}
	exists, err := afero.Exists(h.deps.FS, dst)
	if err != nil {
		return nil, err
	}
	if exists && !b.Overwrite {
		return nil, fmt.Errorf("destination %s already exists", dst)
	}

	fi, err := h.deps.FS.Stat(src)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, h.copyFile(src, dst, fi.Mode())
	}
	if within(src, dst) {
		return nil, fmt.Errorf("cannot copy %s into itself", src)
	}

	err = afero.Walk(h.deps.FS, src, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if fi.IsDir() {
			return h.deps.FS.MkdirAll(target, dirPerm)
		}
		return h.copyFile(path, target, fi.Mode())
	})
	return nil, err
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (h *host) copyFile(src, dst string, mode os.FileMode) error {
	in, err := h.deps.FS.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := h.deps.FS.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return err
	}
	out, err := h.deps.FS.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (h *host) move(_ context.Context, req *bridge.Request) (any, error) {
	_, src, dst, err := bindTransfer(req)
	if err != nil {
		return nil, err
	}
	if err := h.deps.FS.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return nil, err
	}
	return nil, h.deps.FS.Rename(src, dst)
}

func (h *host) delete(_ context.Context, req *bridge.Request) (any, error) {
	_, path, err := bindPath(req)
	if err != nil {
		return nil, err
	}
	if _, err := h.deps.FS.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return nil, h.deps.FS.RemoveAll(path)
}

func (h *host) exist(_ context.Context, req *bridge.Request) (any, error) {
	_, path, err := bindPath(req)
	if err != nil {
		return nil, err
	}
	ok, err := afero.Exists(h.deps.FS, path)
	if err != nil {
		return nil, err
	}
	return map[string]any{"exists": ok}, nil
}
