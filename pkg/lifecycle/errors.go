package lifecycle

import (
	"errors"
	"fmt"
)

// ErrorCode 生命周期错误类型
type ErrorCode int

// 定义错误代码
const (
	// ErrValidation 注册参数无效
	ErrValidation ErrorCode = iota + 1
	// ErrDuplicateService 服务ID重复
	ErrDuplicateService
	// ErrServiceNotFound 服务不存在
	ErrServiceNotFound
	// ErrDependencyUnavailable 依赖服务不存在或未运行
	ErrDependencyUnavailable
	// ErrConfiguration 依赖关系存在环
	ErrConfiguration
	// ErrServiceStart 服务自身启动失败
	ErrServiceStart
	// ErrServiceStop 服务自身停止失败
	ErrServiceStop
	// ErrHealthCheckFailure 健康检查失败
	ErrHealthCheckFailure
	// ErrRestartLimitExceeded 自动重启次数耗尽
	ErrRestartLimitExceeded
	// ErrNotInitialized 注册表未初始化或已关闭
	ErrNotInitialized
)

var codeNames = map[ErrorCode]string{
	ErrValidation:            "ValidationError",
	ErrDuplicateService:      "DuplicateServiceError",
	ErrServiceNotFound:       "ServiceNotFoundError",
	ErrDependencyUnavailable: "DependencyUnavailableError",
	ErrConfiguration:         "ConfigurationError",
	ErrServiceStart:          "ServiceStartError",
	ErrServiceStop:           "ServiceStopError",
	ErrHealthCheckFailure:    "HealthCheckFailureError",
	ErrRestartLimitExceeded:  "RestartLimitExceededError",
	ErrNotInitialized:        "NotInitializedError",
}

// String 返回错误类型名称
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UnknownError"
}

// Error 生命周期操作返回的错误
type Error struct {
	Code       ErrorCode
	ServiceID  string
	Dependency string // 仅 ErrDependencyUnavailable 使用
	Message    string
	Err        error // 服务自身返回的原始错误
}

// Error 实现error接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 返回服务自身的原始错误
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode 判断错误链中是否包含指定类型的生命周期错误
func IsCode(err error, code ErrorCode) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// NewValidationError 创建参数无效错误
func NewValidationError(serviceID, message string) *Error {
	return &Error{
		Code:      ErrValidation,
		ServiceID: serviceID,
		Message:   "注册参数无效: " + message,
	}
}

// NewDuplicateServiceError 创建服务重复错误
func NewDuplicateServiceError(serviceID string) *Error {
	return &Error{
		Code:      ErrDuplicateService,
		ServiceID: serviceID,
		Message:   "服务已存在: " + serviceID,
	}
}

// NewServiceNotFoundError 创建服务不存在错误
func NewServiceNotFoundError(serviceID string) *Error {
	return &Error{
		Code:      ErrServiceNotFound,
		ServiceID: serviceID,
		Message:   "服务不存在: " + serviceID,
	}
}

// NewDependencyUnavailableError 创建依赖不可用错误
func NewDependencyUnavailableError(serviceID, dependency, reason string) *Error {
	return &Error{
		Code:       ErrDependencyUnavailable,
		ServiceID:  serviceID,
		Dependency: dependency,
		Message:    fmt.Sprintf("服务 %s 的依赖 %s 不可用: %s", serviceID, dependency, reason),
	}
}

// NewConfigurationError 创建依赖配置错误
func NewConfigurationError(message string) *Error {
	return &Error{
		Code:    ErrConfiguration,
		Message: "依赖配置错误: " + message,
	}
}

// NewServiceStartError 包装服务启动失败
func NewServiceStartError(serviceID string, err error) *Error {
	return &Error{
		Code:      ErrServiceStart,
		ServiceID: serviceID,
		Message:   "服务启动失败: " + serviceID,
		Err:       err,
	}
}

// NewServiceStopError 包装服务停止失败
func NewServiceStopError(serviceID string, err error) *Error {
	return &Error{
		Code:      ErrServiceStop,
		ServiceID: serviceID,
		Message:   "服务停止失败: " + serviceID,
		Err:       err,
	}
}

// NewHealthCheckFailureError 创建健康检查失败错误，err 可以为空
func NewHealthCheckFailureError(serviceID, message string, err error) *Error {
	return &Error{
		Code:      ErrHealthCheckFailure,
		ServiceID: serviceID,
		Message:   fmt.Sprintf("服务 %s 健康检查失败: %s", serviceID, message),
		Err:       err,
	}
}

// NewRestartLimitExceededError 创建重启次数耗尽错误
func NewRestartLimitExceededError(serviceID string, attempts, limit int) *Error {
	return &Error{
		Code:      ErrRestartLimitExceeded,
		ServiceID: serviceID,
		Message:   fmt.Sprintf("服务 %s 自动重启次数已达上限 (%d/%d)", serviceID, attempts, limit),
	}
}

// NewNotInitializedError 创建未初始化错误
func NewNotInitializedError() *Error {
	return &Error{
		Code:    ErrNotInitialized,
		Message: "服务注册表未初始化或已关闭",
	}
}
