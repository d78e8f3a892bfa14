package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerAdapter_ConvertsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core)).With(ports.String("component", "ledger"))

	accountID := uuid.MustParse("6f1c2b1e-2f43-4c53-9a5e-0d7b9d3a1c11")
	logger.Info("credit applied",
		ports.Stringer("account_id", accountID),
		ports.Stringer("amount", decimal.RequireFromString("20.00")),
		ports.Int("attempt", 2),
		ports.Duration("waited", 150*time.Millisecond),
		ports.Err(errors.New("boom")))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "credit applied", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "ledger", fields["component"])
	assert.Equal(t, accountID.String(), fields["account_id"])
	assert.Equal(t, "20", fields["amount"])
	assert.Equal(t, 150*time.Millisecond, fields["waited"])
	assert.Equal(t, int64(2), fields["attempt"])
	assert.Equal(t, "boom", fields["error"])
}

func TestNew_Levels(t *testing.T) {
	logger, err := New("production", "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = New("development", "loud")
	assert.Error(t, err)
}
