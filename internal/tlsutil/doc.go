// Package tlsutil 集中 evoflow 的 TLS 配置（TLS 1.2+，TLS 1.2 下仅 AEAD 套件）。
//
//   - ServerConfig: 事件流与指标端点的监听器
//   - ClientConfig: Redis 结果缓存与 OTLP 导出器，ServerName 取自地址
//   - HTTPClient: health 子命令
package tlsutil
