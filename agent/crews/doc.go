// 版权所有 2024 FinFlow Authors. 版权所有。
// 此源代码的使用受 MIT 许可证管辖，许可证可在 LICENSE 文件中找到。

/*
包 crews 提供由依赖约束的任务团队（Crew）。

# 概述

一个 Crew 持有一组任务（TaskSpec）与执行它们的工作者（agent.Worker）。
每个任务声明依赖集合、负责的工作者以及独占的产物定位符。
Kickoff 按进程策略逐个执行就绪任务，并把输出提交到 artifacts.Store。

# 进程策略

  - Sequential：依赖图的拓扑序，声明顺序只用于打破平局。
  - Hierarchical：由管理者工作者（Coordinator）在就绪任务中挑选下一个，
    无效选择回退到声明顺序的第一个就绪任务。

# 产物与完成标记

任务执行前校验所有依赖的完成标记，随后读取依赖产物作为上下文。
工作者不直接写存储：文件写入工具只写入绑定到任务定位符的 OutputSlot，
由 Crew 在工作者返回后一次性提交，提交成功后才设置完成标记。

必需任务失败会终止团队，剩余任务标记为 skipped；
尽力而为（best-effort）任务失败后，依赖方带着缺失输入标记继续执行。

# 构建

Build 从 config.Catalog 解析 agent 与任务，缺失的键返回 Configuration 错误，
图结构问题返回 GraphInvalid 错误。
*/
package crews
