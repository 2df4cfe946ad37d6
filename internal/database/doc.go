/*
包 database 提供追踪器使用的 GORM 连接池管理。

Open 按驱动名（postgres、mysql、sqlite）选择方言并打开数据库，sqlite 使用
纯 Go 的 glebarez/sqlite 驱动。PoolManager 统一配置连接池参数，后台定时
探活，并提供 WithTransaction / WithTransactionRetry 两种事务执行方式，
后者对死锁、序列化失败、连接中断与 SQLITE_BUSY 做指数退避重试。
*/
package database
