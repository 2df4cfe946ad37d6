/*
Package pipeline 实现单节点调用管道。

每个 Pipeline 实例对应一个节点的一次调用，状态严格单调：

	CREATED → PREPARED → EXECUTING → EXECUTED → PROCESSING → COMPLETED

Prepare 解析工具并构建历史；Execute 运行 agent 循环（模型给出步骤、执行工具调用、
追加步骤，遇到终止步骤、无工具调用的轮次或步数/轮数上限时停止）；Process 将
步骤轨迹转换为最终输出、下一跳、耗时和费用。

并发调用 Execute 时只有一个成功，另一个得到 RaceConditionError；在 EXECUTED 之前
调用 Process 得到 StateManagementError。实例用后即弃。

LimitedProvider 为模型调用提供并发上限、速率限制和费用上报。
*/
package pipeline
