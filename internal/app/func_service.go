package app

import (
	"context"
	"errors"
)

// FuncService 将阻塞函数包装为服务，函数需在 ctx 结束后返回
type FuncService struct {
	name string
	run  func(ctx context.Context)
}

// NewFuncService 创建函数服务
func NewFuncService(name string, run func(ctx context.Context)) *FuncService {
	return &FuncService{name: name, run: run}
}

// Name 服务名称
func (s *FuncService) Name() string {
	if s == nil || s.name == "" {
		return "func"
	}
	return s.name
}

// Start 运行函数并等待 ctx 结束
func (s *FuncService) Start(ctx context.Context) error {
	if s == nil || s.run == nil {
		return errors.New("func service not initialized")
	}
	s.run(ctx)
	<-ctx.Done()
	return nil
}

// Stop 函数随 ctx 结束退出
func (s *FuncService) Stop(ctx context.Context) error {
	return nil
}
