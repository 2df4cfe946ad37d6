/*
Package workflow 定义可进化的 Agent 工作流配置。

# 概述

一个工作流由若干 Agent 节点组成，节点之间通过 handoff（节点 ID 引用）
传递消息。节点保存在按插入顺序排列的 NodeMap 中；handoff 只是 ID，
在加载时校验，从不持有节点指针，因此即使允许环也不存在所有权问题。
保留目标 "end" 表示工作流结束。

# 核心类型

  - Config：工作流配置：entry + NodeMap
  - Node：节点：system prompt、模型、工具、handoff、步数上限
  - NodeMap：插入有序的节点表，JSON/YAML 中以有序列表表示
  - Options：结构校验选项（AllowCycles、KnownTool）

# 主要能力

  - Validate / ValidateErr：返回全部结构问题或折叠为 WorkflowConfigurationError
  - Hash：结构哈希，作为版本号与评估缓存键
  - LoadFile / LoadAll / Parse：读取 YAML 或 JSON，单个或列表
*/
package workflow
