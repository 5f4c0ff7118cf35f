// Copyright (c) FinFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供流程（Flow）的构建、调度与导出能力。

# 概述

一个 Flow 由若干步骤（StepNode）组成：start 步骤在运行开始时即可执行，
listen 步骤通过 AND / OR 组合子等待前驱步骤。Scheduler 以单一协调者
goroutine 驱动整个运行，步骤处理函数在各自的 goroutine 中执行，
完成事件通过带缓冲通道回传，协调者据此评估汇合条件。

# 核心类型

  - FlowBuilder / StepBuilder — 流式构建 API，Build 时校验悬空引用与环
  - Flow                      — 已校验的不可变步骤图，提供 Plan 静态执行顺序
  - State / StateSchema       — 声明式字段与默认值，写入经由锁与 Reducer 串行化
  - Scheduler                 — 运行流程并产出 FlowResult
  - FlowResult / StepOutcome  — 每步状态、尝试次数、序号与时间戳
  - FlowDefinition            — JSON / YAML 序列化形式，可配合 HandlerRegistry 重建
  - Mermaid / WritePlot       — 图形导出

# 汇合语义

AND：全部前驱进入终态且没有 failed / skipped 时就绪；absorbed 视为完成。
OR：任一前驱 succeeded 即就绪，不等待其余前驱；若所有前驱均结束而无成功，
该步骤被标记为 skipped。

# 确定性

就绪步骤按声明顺序派发。WithMaxConcurrency(1) 时派发顺序与 Plan 完全一致。
*/
package workflow
