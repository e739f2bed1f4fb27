package notify

import (
	"fmt"

	"github.com/kiranshivaraju/chronoguard/internal/config"
)

// NewDispatcher constructs the reminder dispatcher selected by config.
// Called once at server startup.
func NewDispatcher(cfg config.NotifyConfig) (Dispatcher, error) {
	switch cfg.Provider {
	case "log", "":
		return NewLogDispatcher(), nil
	case "nats":
		d, err := ConnectJetStream(cfg.NATS)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q: must be one of log, nats", cfg.Provider)
	}
}
