package errs

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// 业务错误分五类（见各构造函数），服务层只抛这五类 + 内部错误，
// 传输层通过 GRPCStatus 统一映射成对外状态码。
type Kind int

const (
	KindInternal          Kind = iota
	KindNotFound               // 资源不存在
	KindPermissionDenied       // 无权限（所有权/角色不满足）
	KindInvalidTransition      // 状态机不允许的流转
	KindValidation             // 入参/业务规则校验失败
	KindInconsistency          // 数据不一致（上游数据损坏，非用户错误）
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindPermissionDenied:
		return "permission_denied"
	case KindInvalidTransition:
		return "invalid_state_transition"
	case KindValidation:
		return "validation_failure"
	case KindInconsistency:
		return "data_inconsistency"
	default:
		return "internal"
	}
}

// Error 携带错误类别的业务错误。
type Error struct {
	Kind Kind
	Msg  string
	Err  error // 可选的底层错误
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func NotFound(resource, key string) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf("%s not found: %s", resource, key)}
}

func PermissionDenied(msg string) error {
	return &Error{Kind: KindPermissionDenied, Msg: msg}
}

// InvalidTransition 必须指明当前状态与目标状态，禁止静默 no-op。
func InvalidTransition(entity, from, to string) error {
	return &Error{
		Kind: KindInvalidTransition,
		Msg:  fmt.Sprintf("invalid %s status transition: %s -> %s", entity, from, to),
	}
}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Inconsistency(msg string) error {
	return &Error{Kind: KindInconsistency, Msg: msg}
}

// KindOf 取出错误类别；gorm 的记录不存在视同 not_found。
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	return KindInternal
}

func IsKind(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// GRPCStatus 把业务错误映射为 gRPC status。
// 注意 permission_denied 与 not_found 必须区分（鉴权失败发生在资源查找之后）。
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	switch KindOf(err) {
	case KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case KindPermissionDenied:
		return status.Error(codes.PermissionDenied, err.Error())
	case KindInvalidTransition:
		return status.Error(codes.FailedPrecondition, err.Error())
	case KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case KindInconsistency:
		return status.Error(codes.DataLoss, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
