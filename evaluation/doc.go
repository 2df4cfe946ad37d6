/*
Package evaluation 通过实际运行工作流为基因组打分。

Runner 从 entry 节点出发逐跳执行：每一跳构造一条 WorkflowMessage 和一个新的
pipeline.Pipeline，直到 handoff 到 "end" 或达到跳数上限。Evaluator 在一组
Case 上并发运行（并发度有上限，用例之间互不取消），用 Scorer 比较输出与期望，
并按以下公式聚合：

	score = wScore·correctness + wTime·timeFactor + wCost·costFactor

timeFactor 与 costFactor 在 baseline 及以下为 1，在 threshold 及以上为 0，
中间线性变化。抛错的用例记为失败哨兵（分数与两个因子均为 0），其余用例照常计入。
权重不做归一化。

RedisResultCache 以工作流结构哈希和用例 ID 缓存成功结果。
*/
package evaluation
