/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、Token 计数、
tokenizer 工件加载、计数缓存与数据库连接。

# 核心类型

  - Collector：持有 Counter、Histogram、Gauge 向量指标，并实现
    tokenizer.Observer，直接挂到 Counter 与 Registry 上。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 计数指标：tokenizer_count_total{family,status}、tokenizer_tokens_total、
    tokenizer_count_duration_seconds。
  - 工件指标：tokenizer_artifact_loads_total{tokenizer,status}、
    tokenizer_registry_lookups_total{result}。
  - 缓存指标：count_cache_lookups_total{result}。
  - 数据库指标：活跃/空闲连接数、查询耗时。
*/
package metrics
