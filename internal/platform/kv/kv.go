// Package kv 为进度记录与支付指针提供持久化的键值存储。
package kv

import (
	"context"
	"errors"
)

// --- Storage Keys ---
const (
	// ProgressKey 存放序列化后的用户进度记录
	ProgressKey = "casino_vip_state"

	// PaymentPointerKey 存放正在进行中的支付单ID。
	// 它与进度记录分开存放，即使进度被重置也能保留。
	PaymentPointerKey = "luna_last_payment_id"
)

// Backend 是所有持久化实现共同遵守的契约
type Backend interface {
	// Get 返回键对应的值；键不存在时 ok 为 false 且 err 为 nil
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Delete 删除键；键不存在不算错误
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// ErrWriteFailed 由内存后端在模拟故障时返回
var ErrWriteFailed = errors.New("kv: simulated write failure")
