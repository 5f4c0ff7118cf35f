// 版权所有 2024 FinFlow Authors. 版权所有。
// 此源代码的使用受 MIT 许可证管辖，许可证可在 LICENSE 文件中找到。

/*
Package testutil 提供 FinFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 产物存储: NewMemStore / ReadArtifact / AssertArtifact，基于 mem:// bucket
  - 断言工具: AssertErrorCode / AssertJSONEqual
  - 数据工具: MustJSON / MustParseJSON

# 子包

  - testutil/mocks: MockBackend（脚本化推理后端，支持工具调用、委派与
    错误注入）与 MockTool（可编排结果与失败序列的工具）

# 使用示例

	store := testutil.NewMemStore(t)
	backend := mocks.NewMockBackend().ThenToolCall("file_writer", args).ThenAnswer("done")
	res, err := crew.Kickoff(testutil.TestContext(t), inputs)
	testutil.AssertArtifact(t, store, "news/article.md", "Tesla")
*/
package testutil
