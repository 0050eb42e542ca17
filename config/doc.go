// Copyright (c) LLMGate Authors.
// Licensed under the MIT License.

// Package config 提供 llmgate 的配置加载。
//
// 配置来源按优先级叠加：默认值、settings 目录（base.yaml 与
// $APP_PROFILE 对应的 dev/test/prod 文件）、--config 指定的文件、
// 以 LLMGATE_ 为前缀的环境变量。
package config
