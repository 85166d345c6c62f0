package logger

import (
	"go.uber.org/zap"
)

// New 根据运行模式创建日志器，release 使用 JSON 编码
func New(mode string) (*zap.Logger, error) {
	if mode == "release" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Must 创建失败时直接退出
func Must(mode string) *zap.Logger {
	l, err := New(mode)
	if err != nil {
		panic(err)
	}
	return l
}
