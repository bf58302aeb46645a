package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/PRAGNESH1006/Smoothies/internal/middleware"
	"github.com/PRAGNESH1006/Smoothies/internal/model"
	"github.com/PRAGNESH1006/Smoothies/internal/upload"
)

const (
	// multipartFileField はアップロードファイルのフォームフィールド名。
	multipartFileField = "file"
	// multipartMemory はParseMultipartFormがメモリに保持する上限。超えた分は一時ファイルに置かれる。
	multipartMemory = 1 << 20
	// multipartOverhead はファイル本体以外のmultipartヘッダー分の余裕。
	multipartOverhead = 64 << 10
)

// Uploader は画像をUpload Pipelineで保存する。upload.Pipelineが実装する。
type Uploader interface {
	Upload(ctx context.Context, f upload.File, targetPath string) (model.UploadResult, error)
	TargetPath(elem ...string) string
	UploadVerifier
}

// UploadHandler は作成・編集フォーム用の画像アップロードのHTTPハンドラー。
type UploadHandler struct {
	uploader Uploader
	maxSize  int64
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(uploader Uploader, maxSize int64) *UploadHandler {
	if maxSize <= 0 {
		maxSize = upload.DefaultMaxSize
	}
	return &UploadHandler{uploader: uploader, maxSize: maxSize}
}

// Upload はファイルを公開名前空間に保存し、アップロード結果を返す。
// 同名のファイルは同じパスに保存され、後から保存したものが残る。
// POST /api/uploads (multipart/form-data, field "file")
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserIDFromContext(r.Context()); err != nil {
		handleServiceError(w, model.NewUnauthorizedError())
		return
	}

	f, cleanup, err := readMultipartFile(w, r, h.maxSize)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	defer cleanup()

	result, err := h.uploader.Upload(r.Context(), f, h.uploader.TargetPath(f.Name))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUploadPayload(result))
}

// readMultipartFile はmultipartリクエストからアップロードファイルを取り出す。
// 返されたcleanupはファイルと一時ファイルを解放する。
func readMultipartFile(w http.ResponseWriter, r *http.Request, maxSize int64) (upload.File, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return upload.File{}, nil, model.NewUploadError(model.UploadReasonTooLarge, err)
		}
		return upload.File{}, nil, model.NewValidationError("multipart/form-data形式でファイルを送信してください。")
	}

	file, header, err := r.FormFile(multipartFileField)
	if err != nil {
		r.MultipartForm.RemoveAll()
		if errors.Is(err, http.ErrMissingFile) {
			return upload.File{}, nil, model.NewUploadError(model.UploadReasonEmptyFile, err)
		}
		return upload.File{}, nil, model.NewValidationError("ファイルを読み取れませんでした。")
	}

	cleanup := func() {
		file.Close()
		r.MultipartForm.RemoveAll()
	}
	return upload.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, cleanup, nil
}
