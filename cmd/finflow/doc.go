// Copyright (c) FinFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 FinFlow 命令行程序入口。

# 概述

cmd/finflow 运行财报生成流程：可视化 crew 与新闻 crew 并行启动，
二者结束后报告 crew 合并产物生成最终报告。程序支持 YAML 配置文件
加载、FINFLOW_* 环境变量覆盖、结构化日志（zap）、OpenTelemetry
追踪、Prometheus 指标以及可选的运行历史存储。

# 子命令

  - kickoff      — 运行一次流程，打印每个步骤的状态、尝试次数与最终报告定位符；
    流程未成功时以非零状态退出
  - plot         — 导出流程图（Mermaid HTML，默认 ReportFlowPlot.html）及 JSON/YAML 定义
  - history      — 列出最近的运行记录（需配置 history.driver）
  - check-model  — 向模型 API 发送一次最小请求
  - version      — 显示版本信息

# 凭据

模型 API Key 依次从 GEMINI_API_KEY、GOOGLE_API_KEY、
GOOGLE_GEMINI_API_KEY、GOOGLE_AI_API_KEY 探测；搜索 API Key 从
SERPER_API_KEY 读取。配置文件中显式设置的值优先。

# 构建注入

Version、BuildTime、GitCommit 通过 ldflags 设置。
*/
package main
