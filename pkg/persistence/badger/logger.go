package badger

import (
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// storeLogger routes badger's internal logging through the device's zap
// logger, namespaced so store chatter is distinguishable from signing flow
// events. Badger's info-level output (table compactions, value log GC) is
// demoted to debug; on a signer device it is maintenance noise, not events.
type storeLogger struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*storeLogger)(nil)

func newStoreLogger(logger *zap.Logger) *storeLogger {
	return &storeLogger{logger: logger.Named("devicestore")}
}

func (s *storeLogger) Errorf(format string, args ...interface{}) {
	s.logger.Error(fmt.Sprintf(format, args...))
}

func (s *storeLogger) Warningf(format string, args ...interface{}) {
	s.logger.Warn(fmt.Sprintf(format, args...))
}

func (s *storeLogger) Infof(format string, args ...interface{}) {
	s.logger.Debug(fmt.Sprintf(format, args...))
}

func (s *storeLogger) Debugf(format string, args ...interface{}) {
	s.logger.Debug(fmt.Sprintf(format, args...))
}
