// Copyright (c) FinFlow Authors.
// Licensed under the MIT License.

/*
Package retry 提供有界、固定间隔的重试策略，供工具调用、模型调用与
团队启动等各层复用。

# 核心类型

  - RetryPolicy：最大尝试次数、尝试间隔与耗尽策略（propagate / continue_with_log）
  - Retryer：执行受保护调用并返回 Outcome
  - Outcome：尝试次数、最终状态、最后一次错误与实际等待记录

# 语义

第 N 次失败后等待 Delay 再进行下一次尝试，最后一次失败后不等待。
GRAPH_INVALID、CONFIGURATION、DEPENDENCY_NOT_MET 以及 Permanent 包装的错误
不会被重试，也不会被 continue_with_log 吞掉。
*/
package retry
