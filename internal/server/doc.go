/*
包 server 提供 HTTP 服务器生命周期管理，供 evoflow run 暴露
事件流（WebSocket）与 Prometheus 指标端点。

# 核心类型

  - Manager：封装 net/http.Server，Start 非阻塞启动，Shutdown 在
    超时内排空连接，Errors 返回异步错误通道，Addr 返回实际监听地址。
  - Config：监听地址、请求头读取超时、写超时（长连接需为 0）、
    空闲超时、最大请求头大小与优雅关闭超时。

信号处理由调用方通过 signal.NotifyContext 完成。
*/
package server
