// Package tlsutil 集中 LLMGate 出站连接的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件），
// 用于 Redis 计数缓存与 health 子命令的 HTTP 客户端。
package tlsutil
