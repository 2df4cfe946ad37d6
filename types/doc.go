/*
Package types 提供 evoflow 的全局共享类型定义。

types 是最底层的公共包，不依赖任何内部包，为 workflow、tools、pipeline、
evaluation、evolution 等上层模块提供统一的类型契约。

# 核心类型

  - Error / ErrorKind：单一的标签化错误值，按 Kind 分派（配置、执行、修复、
    种群、遗传算子、竞态、状态、持久化）
  - WorkflowMessage：节点间一跳消息（来源、目标、序号、有序负载）
  - AgentStep：节点执行轨迹单元（reasoning / plan / tool-call / terminate / error）
  - Message：面向模型的对话历史
  - ToolSchema / ToolCall / ToolResult：工具调用契约

# Context 传播

WithTraceID / WithRunID / WithWorkflowID / WithGenomeID
*/
package types
