package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/evoflow/api/handlers"
)

// =============================================================================
// 🧅 事件流服务端中间件
// =============================================================================

type requestIDKey struct{}

// RequestIDFromContext 取出 RequestID 注入的请求 ID
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// Middleware 包装一个 http.Handler
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个位于最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// runIDOf 路由匹配后才有值，须在 next.ServeHTTP 之后调用
func runIDOf(r *http.Request) string {
	return r.PathValue("runID")
}

// quietPaths 编排器高频轮询的端点，成功时只记 debug
var quietPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/ready":   true,
}

// Recovery 捕获 handler panic 并返回 500。
// 位于最外层，看不到内层派生的请求，请求 ID 从响应头取。
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("path", r.URL.Path),
						zap.String("request_id", w.Header().Get("X-Request-ID")),
					)
					handlers.WriteErrorMessage(w, http.StatusInternalServerError, handlers.ErrInternal, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 为每个请求注入 X-Request-ID，客户端已提供时保留
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = "req-" + uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OTelTracing 每个请求一个 server span，名称取路由模式，运行 ID 写入 evoflow.run_id
func OTelTracing() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := otel.Tracer("evoflow/stream").Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			rw := handlers.NewResponseWriter(w)
			r = r.WithContext(ctx)
			next.ServeHTTP(rw, r)

			if r.Pattern != "" {
				span.SetName(r.Pattern)
			}
			if id := runIDOf(r); id != "" {
				span.SetAttributes(attribute.String("evoflow.run_id", id))
			}
			span.SetAttributes(attribute.Int("http.response.status_code", rw.StatusCode))
		})
	}
}

// RequestLogger 按状态码分级记录请求；事件流连接的 duration 即订阅时长
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			level := zapcore.InfoLevel
			switch {
			case rw.StatusCode >= http.StatusInternalServerError:
				level = zapcore.ErrorLevel
			case rw.StatusCode >= http.StatusBadRequest:
				level = zapcore.WarnLevel
			case quietPaths[r.URL.Path]:
				level = zapcore.DebugLevel
			}
			ce := logger.Check(level, "request")
			if ce == nil {
				return
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", r.Pattern),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			}
			if id := runIDOf(r); id != "" {
				fields = append(fields, zap.String("run_id", id))
			}
			ce.Write(fields...)
		})
	}
}

// NoStore 运行状态随代推进而变化，响应一律不缓存
func NoStore() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	}
}
