// Package tokenizer 提供网关的 Token 计数核心：
// 模型家族解析、tokenizer 工件注册表与按家族分派的计数器。
//
// 计数流程：ResolveModelFamily 将模型名归类为 managed BPE（tiktoken 离线表）、
// trained tokenizer（磁盘上的 {id}.tokenizer.json）或 unknown；
// Counter 据此选择编码器并返回 token 数。Registry 进程内缓存已加载的工件，永不淘汰。
//
// 注意：BPE 计数允许全部特殊 token，trained tokenizer 以 addSpecialTokens=true 编码，
// 两类家族的计数不可直接比较。
package tokenizer
