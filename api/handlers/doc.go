// Copyright (c) LLMGate Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 LLMGate HTTP API 的请求处理器实现。

# 核心类型

  - TokenHandler    — 文本与消息计数、模型分类、分词器清单
  - UsageHandler    — 按模型聚合的用量查询
  - HealthHandler   — /、/health、/healthz、/ready、/version
  - Response        — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter  — 包装 http.ResponseWriter 以捕获状态码

# 错误映射

TokenizerAPIError 把分词核心的错误转换为 types.Error：不支持的模型与未知托管模型
返回 400 UNSUPPORTED_MODEL，工件读取、解析与编码失败返回 500 TOKENIZER_ERROR。
*/
package handlers
