// 版权所有 2024 FinFlow Authors. 版权所有。
// 此源代码的使用受 MIT 许可证管辖，许可证可在 LICENSE 文件中找到。

/*
# 概述

包 gemini 提供基于 Google Gemini REST API（generativelanguage.googleapis.com）
的 agent.Backend 实现，自行处理请求构建、响应解析与错误映射。

# 核心结构体

  - Provider — 持有 http.Client 与 config.ModelConfig；使用 x-goog-api-key 请求头认证
  - geminiRequest / geminiResponse — Gemini 原生请求/响应结构

# 构造函数

  - New(cfg, logger, opts...) — 默认模型 gemini-2.0-flash
  - WithHTTPClient / WithRequestObserver — 替换客户端、上报请求结果与 Token 用量

# 支持能力

  - generateContent（/v1beta/models/{model}:generateContent）
  - 原生 Function Calling；连续的工具结果合并为一条 functionResponse 内容
  - 委派：存在同事时追加 delegate_work 函数声明，调用结果解析为 agent.Delegation
  - Ping / HealthCheck，供 check-model 命令使用

# 错误映射

  - 401/403 与无效 API Key 映射为 AUTHENTICATION（不可重试）
  - 配额耗尽的 429 映射为不可重试的 RATE_LIMIT，其余 429 可重试
  - 408/504、5xx、传输错误与空候选映射为可重试错误
*/
package gemini
