// Package healthd serves a plaintext HTTP/2 (h2c) gRPC health-check
// endpoint for jkbled, grounded in the teacher's internal/server
// package. The teacher's custom BFD RPC service depended on generated
// protobuf stubs (pkg/bfdpb) that have no equivalent in this module, so
// only the proto-generation-free grpchealth handler is kept, served
// through the teacher's h2c wiring. No interceptors are installed.
package healthd

import (
	"net/http"
	"time"

	"connectrpc.com/grpchealth"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ServiceName is reported alongside the standard grpc.health.v1 service
// so a client can distinguish "the process is up" from "jkbled
// specifically is up".
const ServiceName = "jkble.v1.SessionService"

// NewServer builds an *http.Server exposing the gRPC health-checking
// protocol (grpc.health.v1) over cleartext HTTP/2, bound to addr. The
// health status is always SERVING: jkbled has no single-RPC-call
// concept of unhealthy, it either accepted the listener or didn't.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()

	checker := grpchealth.NewStaticChecker(
		grpchealth.HealthV1ServiceName,
		ServiceName,
	)
	mux.Handle(grpchealth.NewHandler(checker))

	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
