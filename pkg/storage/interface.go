package storage

import (
	"context"
	"errors"

	"github.com/hewenyu/kong-orchestrator/pkg/model"
)

// StatusStore 定义服务状态快照的存储接口
type StatusStore interface {
	// Put 写入或覆盖服务状态快照
	Put(ctx context.Context, info model.ServiceInfo) error

	// Delete 删除服务状态快照
	Delete(ctx context.Context, serviceID string) error

	// Get 获取服务状态快照
	Get(ctx context.Context, serviceID string) (*model.ServiceInfo, error)

	// List 获取所有服务状态快照，按服务ID排序
	List(ctx context.Context) ([]model.ServiceInfo, error)
}

// StorageError 定义存储操作可能返回的错误类型
type StorageError struct {
	Code    int
	Message string
}

// Error 实现error接口
func (e *StorageError) Error() string {
	return e.Message
}

// 定义错误代码
const (
	// ErrNotFound 资源不存在
	ErrNotFound = iota + 1
	// ErrAlreadyExists 资源已存在
	ErrAlreadyExists
	// ErrInvalidArgument 参数无效
	ErrInvalidArgument
	// ErrInternal 内部错误
	ErrInternal
)

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) *StorageError {
	return &StorageError{
		Code:    ErrNotFound,
		Message: message,
	}
}

// NewAlreadyExistsError 创建资源已存在错误
func NewAlreadyExistsError(message string) *StorageError {
	return &StorageError{
		Code:    ErrAlreadyExists,
		Message: message,
	}
}

// NewInvalidArgumentError 创建参数无效错误
func NewInvalidArgumentError(message string) *StorageError {
	return &StorageError{
		Code:    ErrInvalidArgument,
		Message: message,
	}
}

// NewInternalError 创建内部错误
func NewInternalError(message string) *StorageError {
	return &StorageError{
		Code:    ErrInternal,
		Message: message,
	}
}

// IsNotFound 判断是否为资源不存在错误
func IsNotFound(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Code == ErrNotFound
}
