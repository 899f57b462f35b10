package app

import (
	"google.golang.org/grpc"

	"github.com/EVWarrantyLink/EVWarrantyLink/internal/common/server"
	"github.com/EVWarrantyLink/EVWarrantyLink/internal/identity"
)

// RegisterGRPC 把业务服务挂到 gRPC server 上。
// proto 生成代码接入时在这里补 pb.RegisterXxxServer(s, ...)；
// health/reflection 由 server.RunGRPCServer 统一注册。
func RegisterGRPC(s *grpc.Server, a *App) error {
	return nil
}

// ActorFromAuth 把传输层解出的鉴权信息转成业务侧 Actor。
func ActorFromAuth(ai server.AuthInfo) identity.Actor {
	return identity.Actor{ID: ai.Subject, Roles: ai.Roles}
}
