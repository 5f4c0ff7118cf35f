// 版权所有 2024 FinFlow Authors. 版权所有。
// 此源代码的使用受 MIT 许可证管辖，许可证可在 LICENSE 文件中找到。

/*
包 artifacts 为任务产物提供按定位符（locator）寻址的存储能力。

# 概述

每个任务声明唯一的输出定位符，团队在任务完成后将产物一次性提交到
Store，随后才设置完成标记；消费者只读取已提交的产物。

# 核心类型

  - Store：Commit / Read / Stat / List / Delete 抽象接口
  - Ref：产物元数据（生产者、定位符、内容类型、大小、校验和、提交时间）
  - BlobStore：基于 gocloud.dev/blob 的实现，支持 file://、mem:// 以及
    云存储桶；写入在 Close 成功后才对读者可见

# 定位符规则

定位符必须是相对路径，不得包含 ".." 逃逸；反斜杠会被规范为 "/"。
*/
package artifacts
