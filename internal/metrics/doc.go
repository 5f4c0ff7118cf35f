// 版权所有 2024 FinFlow Authors. 版权所有。
// 此源代码的使用受 MIT 许可证管辖，许可证可在 LICENSE 文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排指标采集。

# 概述

Collector 通过 promauto.With 把指标注册到注入的 Registry 上，
因此测试与多个实例之间不会共享全局注册状态。Handler 通过 promhttp 暴露指标。

# 指标分组

  - Flow：运行总数与耗时，步骤最终状态、耗时与尝试次数。
  - Crew：任务最终状态与耗时。
  - 工具与后端：工具调用结果与耗时，后端请求与 Token 用量。
  - 重试：每次受保护调用的最终状态与尝试次数，scope 归并为 tool/backend/step 等类别。

RetryObserver 可直接注入 retry.WithObserver；步骤、任务与工具观察者
由 internal/report 以闭包适配到对应的记录方法。
*/
package metrics
