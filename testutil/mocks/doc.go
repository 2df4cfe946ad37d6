/*
Package mocks 提供流水线与工具层测试使用的模拟实现。

# 核心类型

  - MockProvider：pipeline.ModelProvider 的模拟实现，支持按轮次脚本化
    AgentStep、错误注入、延迟、第 N 次调用后失败与按调用计费。
  - MockMCPClient / MockClientFactory：tools.MCPClient 与
    tools.ClientFactory 的模拟实现，记录创建次数与工具调用，
    可注入创建失败、列表失败和创建延迟。

# 辅助函数

ToolCallStep 与 TerminateStep 用于快速构造模型返回的步骤。

	provider := mocks.NewMockProvider().WithRounds(
		[]types.AgentStep{mocks.ToolCallStep("c1", "search", `{}`)},
		[]types.AgentStep{mocks.TerminateStep("done", "")},
	)
*/
package mocks
