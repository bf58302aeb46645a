// Package storage はアップロード画像を保存するローカルファイルシステムのオブジェクトストアを提供する。
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Local はディレクトリ配下にオブジェクトを保存するオブジェクトストア。
// 書き込みは一時ファイル経由のrenameで行うため、読み手が書きかけのファイルを見ることはない。
type Local struct {
	root    string
	baseURL string
}

// NewLocal はLocalを生成し、保存先ディレクトリを作成する。
func NewLocal(root, publicBaseURL string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Local{root: abs, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Put はオブジェクトを保存する。同じパスへの書き込みは後勝ちで上書きされる。
// fsync後にrenameするため、戻った時点で公開URLから読み取れる。
func (l *Local) Put(ctx context.Context, objectPath string, body io.Reader, size int64, contentType string) error {
	dst, err := l.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create object dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: body})
	if err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("short write: wrote %d of %d bytes", n, size)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod object: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to commit object: %w", err)
	}
	committed = true
	return nil
}

// PublicURL はオブジェクトパスから公開URLを導出する。
func (l *Local) PublicURL(objectPath string) string {
	return l.baseURL + "/" + strings.TrimLeft(objectPath, "/")
}

// Handler は保存済みオブジェクトを配信するハンドラーを返す。
// ディレクトリ一覧と一時ファイルは404にする。
func (l *Local) Handler() http.Handler {
	files := http.FileServer(http.Dir(l.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") || strings.HasPrefix(filepath.Base(r.URL.Path), ".") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}

// resolve はオブジェクトパスをroot配下のファイルパスに変換する。
func (l *Local) resolve(objectPath string) (string, error) {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") {
		return "", fmt.Errorf("invalid object path %q", objectPath)
	}
	dst := filepath.Join(l.root, filepath.FromSlash(objectPath))
	rel, err := filepath.Rel(l.root, dst)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object path %q escapes storage root", objectPath)
	}
	return dst, nil
}

// ctxReader はコンテキストのキャンセルで読み取りを中断する。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
