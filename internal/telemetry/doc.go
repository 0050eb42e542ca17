// Package telemetry 负责 LLMGate 的 OpenTelemetry 初始化：
// OTLP gRPC 导出 trace 与 metric，或用 stdout 导出器做本地调试。
// 关闭时返回 noop provider，tokenizer.count span 仍可安全创建。
package telemetry
