// 版权所有 2024 FinFlow Authors. 版权所有。
// 此源代码的使用受 MIT 许可证管辖，许可证可在 LICENSE 文件中找到。

/*
Package tools 提供工作者（Worker）可调用的能力集合。

# 概述

每个工具实现 Tool 接口：Schema 向模型后端描述参数，Call 执行调用。
Registry 在一次运行内按名称保存工具实例，任务声明的能力集合由
Resolve 解析，缺失名称即配置错误。

# 内置工具

  - web_search / news_search：基于 Serper 的网页与新闻搜索
  - scrape_website：基于 x/net/html 的页面正文与链接抽取
  - chart_renderer：将行情数据渲染为 Mermaid 图表块
  - file_writer / file_reader：绑定到任务产物的读写

# 产物绑定

file_writer 只写入当前任务的 OutputSlot，由 crew 在任务结束后提交到
artifacts.Store；file_reader 只能读取已完成依赖任务的产物。两者通过
WithBinding 放入 context 的 Binding 获取任务视图。

# 速率限制

Register 可为工具附加 golang.org/x/time/rate 令牌桶，调用前等待令牌，
等待过程遵循 context 取消。
*/
package tools
