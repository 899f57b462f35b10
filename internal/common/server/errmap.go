package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/errs"
)

// UnaryErrorMapInterceptor 把业务错误统一映射为 gRPC status。
// handler 已经返回 status 错误时原样透传，不做二次包装。
func UnaryErrorMapInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		return resp, errs.GRPCStatus(err)
	}
}
