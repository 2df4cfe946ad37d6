/*
包 metrics 提供基于 Prometheus 的演化运行指标采集。

# 核心类型

  - Collector：通过 promauto.With 注册到调用方提供的 Registerer，
    同时满足 evolution.Recorder、evaluation.CaseRecorder、
    evaluation.PipelineRecorder 与 tools.CacheRecorder。

# 指标

  - 演化：完成代数、每代耗时、最佳/平均适应度、按结果分组的基因组数、
    模型花费。
  - 评估：用例结果（ok/failed）与耗时、节点管道耗时。
  - 工具：客户端缓存命中与未命中。
  - 数据库：追踪库的打开/空闲连接数。
*/
package metrics
