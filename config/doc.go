// Package config 提供 FinFlow 的配置管理功能。
//
// 包含运行配置的加载（默认值 → YAML → FINFLOW_* 环境变量 → 验证器），
// 以及按名称查找工作者与任务定义的 Catalog。
package config
