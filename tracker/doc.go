// Package tracker 持久化演化运行、代际、工作流版本与调用评分。
//
// MemoryTracker 用于测试和试运行；GormTracker 经 internal/database 的连接池
// 写入 postgres、mysql 或 sqlite，写操作在事务中执行并对瞬时错误重试。
// 所有失败都以 RunTrackingError 返回，不影响调用方的内存状态。
package tracker
