/*
Package handlers 提供 evoflow 只读 HTTP 接口的请求处理器实现。

# 核心类型

  - RunHandler       运行详情与调用记录查询，数据来自 tracker.Tracker
  - StreamHandler    基于 coder/websocket 的实时事件流与事件快照
  - HealthHandler    /health、/healthz、/ready、/version
  - Response         统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        结构化错误信息，含 kind、code、action、retryable

# 错误映射

WriteError 根据 types.Error 的 Kind 选择状态码：配置错误 400，
竞态与状态错误 409，记录不存在 404，持久化失败 503，其余 500。
非结构化错误只返回通用消息。

NewRouter 使用 Go 1.22 的 "METHOD /path/{param}" 模式注册路由，
中间件（恢复、请求 ID、访问日志、追踪）由 cmd/evoflow 组装。
*/
package handlers
