// Package tools 将节点声明的工具名解析为可调用句柄。
//
// 代码工具来自静态 CodeRegistry；外部 MCP 工具通过子进程客户端提供，
// 客户端按 (workflowID, toolName) 缓存在 ClientRegistry 中，使同一工作流
// 的多次调用共享会话状态。
package tools
