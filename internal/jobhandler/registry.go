package jobhandler

import (
	"fmt"

	"mgmt-syncq/internal/config"
	"mgmt-syncq/internal/syncqueue"
	"mgmt-syncq/pkg/logging"
)

// BuildRegistry 按配置构建处理器注册表
//
// handlers.webhooks 中的每个资源类型注册一个 Webhook；
// handlers.default 为 log 时其余类型交给 Log 处理器，为 none 时
// 未配置的类型以 Fatal 结束。
func BuildRegistry(cfg config.HandlersConfig, log *logging.Logger) (*syncqueue.HandlerRegistry, error) {
	reg := syncqueue.NewHandlerRegistry()
	for kind, wh := range cfg.Webhooks {
		if wh.URL == "" {
			return nil, fmt.Errorf("webhook handler for %q has no url", kind)
		}
		reg.Register(kind, NewWebhook(wh.URL, wh.Timeout, wh.Headers))
	}

	switch cfg.Default {
	case "", "log":
		reg.SetDefault(NewLog(log))
	case "none":
	default:
		return nil, fmt.Errorf("unsupported default handler %q", cfg.Default)
	}
	return reg, nil
}
