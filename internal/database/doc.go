/*
包 database 打开用量账本使用的数据库，并管理 GORM 连接池。

# 核心类型

  - Open：按 config.DatabaseConfig 选择 postgres、mysql 或 sqlite（glebarez，纯 Go）方言。
  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 Ping（用作 /ready 检查）、
    Stats、WithTransaction 与 Close。
  - PoolConfig：连接池参数，Validate 校验连接数关系。

后台健康检查定时 PingContext，并通过 StatsRecorder 把连接数写入 Prometheus。
*/
package database
