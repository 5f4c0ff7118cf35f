// Copyright (c) FinFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 FinFlow 编排核心的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 retry、workflow、agent、
crews 等上层模块提供统一的错误契约与上下文传播工具。

# 核心类型

  - Error / ErrorCode — 结构化错误，含 Retryable 标记与尝试次数
  - GRAPH_INVALID       — 步骤或任务图非法（构造期致命错误）
  - CONFIGURATION       — 智能体或任务配置缺失（构造期致命错误）
  - TRANSIENT_OPERATION — 可重试的瞬时失败
  - EXHAUSTED_RETRY     — 重试耗尽，携带最后一次错误
  - DEPENDENCY_NOT_MET  — 依赖未完成即被调度，或因上游失败被跳过

# 辅助函数

  - IsRetryable / GetErrorCode / IsCode / IsFatal：基于 errors.As 的错误判定
  - WithRunID / WithStepID / WithCrew / WithTaskID：日志与追踪上下文传播
*/
package types
