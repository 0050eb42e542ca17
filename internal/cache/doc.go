/*
包 cache 提供基于 Redis 的缓存管理，用作 Token 计数结果的共享缓存。

# 核心类型

  - Manager：封装 go-redis 客户端，提供 Get/Set/Delete/DeletePrefix/Ping，
    键统一加 KeyPrefix，后台按间隔做健康检查。Manager 满足
    tokenizer.CountStore，可直接传给 tokenizer.NewCachedCounter。
  - Config：地址、认证、连接池、默认过期时间与健康检查间隔。

未命中返回 ErrCacheMiss，关闭后的调用返回 ErrClosed。
*/
package cache
