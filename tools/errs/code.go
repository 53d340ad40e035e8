package errs

import "errors"

// 业务错误码
const (
	CodeValidationFailed = 1001 // 参数非法（空内容/空身份等）
	CodeNotAuthenticated = 1002 // 连接未完成身份绑定
	CodeNotAuthorized    = 1003 // 身份与所需角色不符
	CodeNotFound         = 1004 // 消息/用户不存在
	CodeStoreUnavailable = 1005 // 存储读写失败（可重试）
)

var (
	ErrValidationFailed = NewCodeError(CodeValidationFailed, "validation failed")
	ErrNotAuthenticated = NewCodeError(CodeNotAuthenticated, "not authenticated")
	ErrNotAuthorized    = NewCodeError(CodeNotAuthorized, "not authorized")
	ErrNotFound         = NewCodeError(CodeNotFound, "not found")
	ErrStoreUnavailable = NewCodeError(CodeStoreUnavailable, "store unavailable")
)

// CodeOf returns the business code carried by err, or 0 for plain errors.
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}
