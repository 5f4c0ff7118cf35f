// 版权所有 2024 FinFlow Authors. 版权所有。
// 此源代码的使用受 MIT 许可证管辖，许可证可在 LICENSE 文件中找到。

/*
包 server 管理命令运行期间的后台 HTTP 端点。

# 概述

Manager 封装 net/http.Server，负责监听、后台服务、优雅关闭与异步错误
传播。finflow kickoff 在配置了 metrics.addr 时用它暴露 Prometheus
/metrics 端点，流程结束后关闭。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与错误通道，提供
    Start/Shutdown/Errors/Addr/IsRunning。
  - Config：监听地址、请求头读取超时、写入超时与关闭超时。

# 构造函数

  - NewManager(handler, cfg, logger)
  - NewMetricsManager(addr, handler, logger) — 在 /metrics 下挂载 handler
*/
package server
