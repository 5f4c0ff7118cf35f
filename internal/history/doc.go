// 版权所有 2024 FinFlow Authors. 版权所有。
// 此源代码的使用受 MIT 许可证管辖，许可证可在 LICENSE 文件中找到。

/*
包 history 保存已结束 flow 运行的摘要。

只有运行结束后的 FlowResult 摘要会被写入，进行中的状态从不持久化。
Store 有两种实现：

  - GormStore：基于 GORM，支持 sqlite（glebarez 纯 Go 驱动）、postgres 与 mysql。
  - RedisStore：基于 go-redis，记录以 JSON 存储，按开始时间维护有序集合索引。

Open 根据 config.HistoryConfig 选择实现；driver 为空时返回不做任何事的存储。
*/
package history
