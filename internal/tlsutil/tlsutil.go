package tlsutil

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// =============================================================================
// 🔒 evoflow 各连接共用的 TLS 基线
// =============================================================================

// aeadSuites TLS 1.2 下允许的密码套件，TLS 1.3 套件由标准库固定
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

func baseline() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: append([]uint16(nil), aeadSuites...),
	}
}

// ServerConfig 加载证书对，供事件流与指标端点的监听器使用
func ServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	cfg := baseline()
	cfg.Certificates = []tls.Certificate{cert}
	return cfg, nil
}

// ClientConfig 返回连接 addr 的客户端配置。
// addr 形如 host:port（Redis、OTLP 端点），ServerName 取其主机部分；
// 无法解析端口时整个 addr 视为主机名。
func ClientConfig(addr string) *tls.Config {
	cfg := baseline()
	cfg.ServerName = hostOf(addr)
	return cfg
}

// HTTPClient evoflow health 等命令访问事件流服务端用的客户端。
// 主机名按请求 URL 校验，因此不固定 ServerName。
func HTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: baseline(),
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        4,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: timeout,
		},
	}
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
