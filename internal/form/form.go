// Package form は画面ごとの入力フォームを型付きの構造体として定義し、
// リモート呼び出しの前に検証する。
//
// 検証エラーはすべて model.CategoryValidation の APIError として返され、
// ネットワークには到達しない。
package form

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/PRAGNESH1006/Smoothies/internal/model"
)

// validate はパッケージ共通のバリデータ。validator.Validateはスレッドセーフで、
// 構造体情報をキャッシュするため使い回す。
var validate = validator.New(validator.WithRequiredStructEnabled())

// fieldLabels はエラーメッセージに表示するフィールド名。
var fieldLabels = map[string]string{
	"Title":       "タイトル",
	"Ingredients": "材料",
	"Method":      "作り方",
	"Rating":      "評価",
	"Phone":       "電話番号",
	"Email":       "メールアドレス",
	"Password":    "パスワード",
}

// ParseRating は評価の入力文字列を整数に変換する。
// 整数以外、または0〜10の範囲外の入力はエラーとする。
func ParseRating(input string) (int, error) {
	s := strings.TrimSpace(input)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, model.NewRatingOutOfRangeError(input)
	}
	if !model.ValidRating(n) {
		return 0, model.NewRatingOutOfRangeError(input)
	}
	return n, nil
}

// validateStruct はvalidatorの結果をAPIErrorに変換する。
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewValidationError(err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return model.NewValidationError(strings.Join(msgs, " "))
}

// describe は1件の検証エラーを日本語のメッセージにする。
func describe(fe validator.FieldError) string {
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%sを入力してください。", label)
	case "max":
		return fmt.Sprintf("%sは%s文字以内で入力してください。", label, fe.Param())
	case "min":
		return fmt.Sprintf("%sは%s文字以上で入力してください。", label, fe.Param())
	case "email":
		return fmt.Sprintf("%sの形式が正しくありません。", label)
	default:
		return fmt.Sprintf("%sが不正です。", label)
	}
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
