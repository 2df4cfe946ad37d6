// Package config 提供 EvoFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 EVOFLOW）的顺序叠加，
// 随后由 Validate 检查。EngineConfig 与 EvaluatorConfig 把各配置段
// 组装成演化引擎和评估器所需的结构。
package config
