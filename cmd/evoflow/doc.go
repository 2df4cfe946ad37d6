/*
evoflow 是演化引擎的命令行入口。

	evoflow run --cases cases.yaml [--config evoflow.yaml] [--stream-addr :8090] [--metrics-addr :9091]
	evoflow migrate up|down|status|version|info|goto|force|reset
	evoflow health --addr http://localhost:8090
	evoflow version

run 装配追踪存储（GORM 或内存）、可选 Redis 结果缓存、MCP 工具解析器、
准入受限的模型提供方、评估器与观测 Hub，然后执行一次演化并以 JSON
输出运行摘要。--stream-addr 开启运行查询与 WebSocket 事件流，
--metrics-addr 开启 Prometheus 指标端点。
*/
package main
