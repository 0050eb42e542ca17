// Copyright (c) LLMGate Authors.
// Licensed under the MIT License.

/*
Package types 提供网关的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、api、cmd
等上层模块提供统一的错误码与 Context 传播约定，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - contextKey        — RequestID / TenantID / UserID / Roles

# 主要能力

  - Context 传播：WithRequestID / WithTenantID / WithUserID / WithRoles
  - 错误工具链：NewError / AsError / GetErrorCode / IsRetryable
*/
package types
