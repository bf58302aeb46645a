// Package upload は画像ファイルをオブジェクトストアに保存し、
// 公開URLを解決するUpload Pipelineを提供する。
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/PRAGNESH1006/Smoothies/internal/metrics"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

// sniffLen はContent-Type判定に使用する先頭バイト数。
const sniffLen = 512

// DefaultMaxSize はアップロード可能なファイルサイズの既定上限（5MB）。
const DefaultMaxSize int64 = 5 << 20

// allowedTypes はアップロードを許可する画像形式。
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ObjectStore はアップロード先のオブジェクトストアのインターフェース。
type ObjectStore interface {
	// Put はオブジェクトを保存する。戻った時点で公開URLから読み取れる状態になっている。
	// 同じパスへの書き込みは後勝ちで上書きする。
	Put(ctx context.Context, objectPath string, body io.Reader, size int64, contentType string) error
	// PublicURL はパスから公開URLを導出する。リモート呼び出しは行わない。
	PublicURL(objectPath string) string
}

// File はアップロード対象のファイル。
type File struct {
	Name        string
	ContentType string // クライアントが申告した値。判定には使用しない
	Size        int64
	Body        io.Reader
}

// Config はUpload Pipelineの設定。
type Config struct {
	Namespace string // 公開オブジェクトの名前空間（例: "public"）
	MaxSize   int64
}

// Pipeline はUpload Pipelineの実装。
type Pipeline struct {
	store   ObjectStore
	cfg     Config
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewPipeline はPipelineを生成する。
func NewPipeline(store ObjectStore, cfg Config, m metrics.MetricsCollector, logger *slog.Logger) *Pipeline {
	if cfg.Namespace == "" {
		cfg.Namespace = "public"
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: store, cfg: cfg, metrics: m, logger: logger}
}

// Namespace は公開オブジェクトの名前空間を返す。
func (p *Pipeline) Namespace() string {
	return p.cfg.Namespace
}

// TargetPath はファイル名から名前空間直下の保存先パスを組み立てる。
// ディレクトリ成分は取り除く。同名ファイルは同じパスになり、後勝ちで上書きされる。
func (p *Pipeline) TargetPath(elem ...string) string {
	parts := make([]string, 0, len(elem)+1)
	parts = append(parts, p.cfg.Namespace)
	for i, e := range elem {
		if i == len(elem)-1 {
			e = path.Base(strings.ReplaceAll(e, "\\", "/"))
		}
		parts = append(parts, e)
	}
	return path.Join(parts...)
}

// Upload はファイルを検証してtargetPathに保存し、公開URLを解決する。
//
// 検証（空ファイル・サイズ上限・画像形式・保存先パス）はリモート呼び出しの前に行う。
// 保存と公開URLの解決は1つの論理操作として扱い、保存が完了する前にURLを返すことはない。
// 失敗時はStatusがfailedの結果とUploadErrorを返す。再試行や部分書き込みの掃除は行わない。
func (p *Pipeline) Upload(ctx context.Context, f File, targetPath string) (model.UploadResult, error) {
	result := model.UploadResult{SourceFileName: f.Name, Status: model.UploadPending}

	objectPath, err := p.cleanPath(targetPath)
	if err != nil {
		return p.fail(result, model.UploadReasonInvalidPath, err)
	}
	result.Path = objectPath

	if f.Body == nil || f.Size == 0 {
		return p.fail(result, model.UploadReasonEmptyFile, nil)
	}
	if f.Size < 0 || f.Size > p.cfg.MaxSize {
		return p.fail(result, model.UploadReasonTooLarge,
			fmt.Errorf("size %d exceeds limit %d", f.Size, p.cfg.MaxSize))
	}

	head := make([]byte, min(int64(sniffLen), f.Size))
	n, err := io.ReadFull(f.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return p.fail(result, model.UploadReasonEmptyFile, fmt.Errorf("read upload: %w", err))
	}
	head = head[:n]
	if n == 0 {
		return p.fail(result, model.UploadReasonEmptyFile, nil)
	}

	contentType := http.DetectContentType(head)
	if !allowedTypes[contentType] {
		return p.fail(result, model.UploadReasonInvalidType,
			fmt.Errorf("content type %q is not allowed", contentType))
	}

	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), f.Body), f.Size)
	if err := p.store.Put(ctx, objectPath, body, f.Size, contentType); err != nil {
		return p.fail(result, model.UploadReasonStorageFailed, fmt.Errorf("put %s: %w", objectPath, err))
	}

	result.PublicURL = p.store.PublicURL(objectPath)
	result.Status = model.UploadResolved
	p.metrics.RecordUploadSuccess(f.Size)
	p.logger.Info("upload stored",
		slog.String("path", objectPath),
		slog.String("content_type", contentType),
		slog.Int64("size", f.Size),
	)
	return result, nil
}

// Verify はクライアントから送り返されたアップロード結果を検証し、正規化した結果を返す。
// 確定済みで、パスが名前空間の配下にあり、公開URLがそのパスから導出した値と一致する場合のみ受け付ける。
func (p *Pipeline) Verify(result model.UploadResult) (model.UploadResult, error) {
	if !result.Resolved() {
		return model.UploadResult{}, model.NewUploadNotResolvedError()
	}
	objectPath, err := p.cleanPath(result.Path)
	if err != nil {
		return p.reject(result, err)
	}
	if want := p.store.PublicURL(objectPath); result.PublicURL != want {
		return p.reject(result, fmt.Errorf("public url %q does not match path %q", result.PublicURL, objectPath))
	}
	result.Path = objectPath
	return result, nil
}

func (p *Pipeline) reject(result model.UploadResult, err error) (model.UploadResult, error) {
	p.logger.Warn("upload result rejected",
		slog.String("file", result.SourceFileName),
		slog.String("error", err.Error()),
	)
	return model.UploadResult{}, model.NewUploadError(model.UploadReasonInvalidPath, err)
}

// cleanPath は保存先パスを正規化し、名前空間の配下にあることを確認する。
func (p *Pipeline) cleanPath(targetPath string) (string, error) {
	if strings.TrimSpace(targetPath) == "" {
		return "", fmt.Errorf("target path is empty")
	}
	if strings.ContainsRune(targetPath, '\\') || strings.HasPrefix(targetPath, "/") {
		return "", fmt.Errorf("target path %q is not a relative slash path", targetPath)
	}
	for _, seg := range strings.Split(targetPath, "/") {
		if seg == ".." {
			return "", fmt.Errorf("target path %q escapes namespace", targetPath)
		}
	}
	cleaned := path.Clean(targetPath)
	if !strings.HasPrefix(cleaned, p.cfg.Namespace+"/") {
		return "", fmt.Errorf("target path %q is outside namespace %q", targetPath, p.cfg.Namespace)
	}
	return cleaned, nil
}

func (p *Pipeline) fail(result model.UploadResult, reason string, err error) (model.UploadResult, error) {
	result.Status = model.UploadFailed
	result.PublicURL = ""
	p.metrics.RecordUploadFailure(reason)

	attrs := []any{
		slog.String("reason", reason),
		slog.String("file", result.SourceFileName),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	p.logger.Warn("upload rejected", attrs...)
	return result, model.NewUploadError(reason, err)
}
