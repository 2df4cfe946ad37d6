/*
包 evolution 实现工作流基因组的遗传编程主循环。

# 一代的流程

  1. 播种（仅第 0 代）：RandomSeeder、BaseWorkflowSeeder 或 FileSeeder。
  2. 繁殖：精英直接复制到下一代，其余由 Selector 选出父代后做交叉或变异。
  3. 修复：结构不合法的子代最多修复 MaxRetriesForWorkflowRepair 次，
     仍不合法则丢弃；丢弃比例超过 MaxDiscardRatio 时运行失败。
  4. 评估：在 MaxConcurrentWorkflows 的准入控制下并发评估，CostBreaker
     超出预算后拒绝新的派发。
  5. 持久化：通过 tracker.Tracker 写入代、工作流版本、调用与分数。
  6. 选择：Selector.Survivors 产生下一代的父代池，最小规模由 Population 保证。

停滞看门狗在 StallThreshold 内没有完成新的一代时把运行标记为 interrupted。
Engine.Cancel 的效果相同：已派发的评估会跑完，但结果不再进入后续代。
*/
package evolution
