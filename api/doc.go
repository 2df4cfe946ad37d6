/*
包 api 定义 evoflow 只读 HTTP 接口的响应视图类型。

接口由 api/handlers 实现，挂在 evoflow run 的事件流服务器上：

  - GET /runs/{runID}                       运行记录与已完成的代际
  - GET /runs/{runID}/invocations           调用记录，可按 ?generation= 过滤
  - GET /runs/{runID}/events                事件缓冲快照
  - GET /runs/{runID}/stream                WebSocket 实时事件流（先回放缓冲）
  - GET /health /healthz /ready /version    健康检查
*/
package api
