package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/stockvn/paygate/pkg/logger"
	"github.com/stockvn/paygate/pkg/validation"
)

// BankSource supplies the bank list.
type BankSource interface {
	FetchBanks(ctx context.Context) ([]Bank, error)
}

// BankCatalog caches the gateway's supported banks and refreshes them periodically.
type BankCatalog struct {
	logger *logger.Logger
	source BankSource

	mu     sync.RWMutex
	codes  map[string]Bank
	loaded bool

	refresh    time.Duration
	backoff    time.Duration
	maxBackoff time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewBankCatalog(source BankSource, logger *logger.Logger) *BankCatalog {
	ctx, cancel := context.WithCancel(context.Background())
	return &BankCatalog{
		logger:     logger,
		source:     source,
		codes:      make(map[string]Bank),
		refresh:    time.Hour,
		backoff:    5 * time.Second,
		maxBackoff: 5 * time.Minute,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Refresh fetches the bank list and replaces the cache.
func (b *BankCatalog) Refresh(ctx context.Context) error {
	banks, err := b.source.FetchBanks(ctx)
	if err != nil {
		return err
	}

	codes := make(map[string]Bank, len(banks)*3)
	for _, bank := range banks {
		if !bank.Supported {
			continue
		}
		for _, key := range []string{bank.ShortName, bank.Code, bank.BIN} {
			if key != "" {
				codes[validation.NormalizeBankCode(key)] = bank
			}
		}
	}

	b.mu.Lock()
	b.codes = codes
	b.loaded = true
	b.mu.Unlock()

	b.logger.Info("Bank catalog refreshed", "banks", len(banks))
	return nil
}

// Known reports whether code names a supported bank. loaded is false until the first refresh succeeds.
func (b *BankCatalog) Known(code string) (known bool, loaded bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.loaded {
		return false, false
	}
	_, known = b.codes[validation.NormalizeBankCode(code)]
	return known, true
}

// Lookup returns the bank registered under code.
func (b *BankCatalog) Lookup(code string) (Bank, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bank, ok := b.codes[validation.NormalizeBankCode(code)]
	return bank, ok
}

// Start loads the catalog in the background, retrying with backoff, then refreshes it hourly.
func (b *BankCatalog) Start() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		backoff := b.backoff
		for {
			err := b.Refresh(b.ctx)
			if err == nil {
				break
			}
			b.logger.Error("Failed to load bank catalog, retrying", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
				backoff *= 2
				if backoff > b.maxBackoff {
					backoff = b.maxBackoff
				}
			case <-b.ctx.Done():
				return
			}
		}

		ticker := time.NewTicker(b.refresh)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := b.Refresh(b.ctx); err != nil {
					b.logger.Error("Failed to refresh bank catalog", "error", err)
				}
			case <-b.ctx.Done():
				return
			}
		}
	}()
}

func (b *BankCatalog) Stop() {
	b.cancel()
	b.wg.Wait()
	b.logger.Info("Bank catalog stopped")
}
