package observability

import (
	"fmt"

	"github.com/rxledger/rxledger/internal/logger"
)

// promLogger routes promhttp handler errors into the metrics module log.
type promLogger struct{}

func (promLogger) Println(v ...any) {
	logger.Global().Module("metrics").Warn("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
