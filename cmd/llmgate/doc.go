// Copyright (c) LLMGate Authors.
// Licensed under the MIT License.

/*
Package main 提供 LLMGate 网关的可执行入口。

# 概述

cmd/llmgate 基于 cobra 组织子命令：serve 启动 HTTP 与 Metrics 双端口服务，
count 与 resolve 在本地直接调用分词核心，health 探测运行中的实例。

# 核心类型

  - Server     — 组装配置、分词器、缓存、用量存储与 HTTP 路由，负责优雅关闭
  - Middleware — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、Metrics、
    OTelTracing、CORS、BodyLimit，以及 JWTAuth 或 APIKeyAuth 二选一
  - 限流：未启用 JWT 时按 IP，启用后按租户
  - Metrics 服务器：独立端口暴露 /metrics，使用私有 Prometheus registry
  - 退出码：0 成功，2 模型不受支持，3 超时，其余为 1
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
