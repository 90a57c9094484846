// Package migrations 内嵌注册中心 MySQL 存储的全部 SQL 迁移，
// 由 internal/storage/mysql 在建连后按版本号顺序执行。
package migrations

import "embed"

// Files 按文件名排序暴露迁移脚本。
//
//go:embed *.sql
var Files embed.FS
