package tokenizer

import (
	"errors"
	"fmt"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrUnsupportedModel    = errors.New("unsupported model")
	ErrUnknownManagedModel = errors.New("unknown managed BPE model")
	ErrArtifactRead        = errors.New("tokenizer artifact read failed")
	ErrArtifactParse       = errors.New("tokenizer artifact parse failed")
	ErrTokenization        = errors.New("tokenization failed")
)

// Error 是核心返回的唯一错误类型，Kind 为上面的哨兵错误之一。
type Error struct {
	Kind        error
	Model       string
	TokenizerID string
	Path        string
	Cause       error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrUnsupportedModel:
		// 调用方依赖该字面量，不要修改格式。
		return fmt.Sprintf("no tokenizer configured for model: %s", e.Model)
	case ErrUnknownManagedModel:
		return fmt.Sprintf("unknown managed BPE model: %s", e.Model)
	case ErrArtifactRead:
		if e.Path == "" {
			return fmt.Sprintf("read tokenizer %q: %v", e.TokenizerID, e.Cause)
		}
		return fmt.Sprintf("read tokenizer file %s: %v", e.Path, e.Cause)
	case ErrArtifactParse:
		return fmt.Sprintf("invalid tokenizer.json for %q: %v", e.TokenizerID, e.Cause)
	case ErrTokenization:
		return fmt.Sprintf("tokenize error: %v", e.Cause)
	default:
		if e.Cause != nil {
			return e.Cause.Error()
		}
		return "tokenizer error"
	}
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func unsupportedModel(model string) error {
	return &Error{Kind: ErrUnsupportedModel, Model: model}
}

func unknownManagedModel(model string, cause error) error {
	return &Error{Kind: ErrUnknownManagedModel, Model: model, Cause: cause}
}

func artifactReadFailed(path string, cause error) error {
	return &Error{Kind: ErrArtifactRead, Path: path, Cause: cause}
}

func artifactParseFailed(tokenizerID string, cause error) error {
	return &Error{Kind: ErrArtifactParse, TokenizerID: tokenizerID, Cause: cause}
}

func tokenizationFailed(cause error) error {
	return &Error{Kind: ErrTokenization, Cause: cause}
}

// IsClientError reports whether err is caused by the requested model rather than the
// gateway environment. Handlers map these to 400.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnsupportedModel) || errors.Is(err, ErrUnknownManagedModel)
}
